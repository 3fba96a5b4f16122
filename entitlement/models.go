package entitlement

import (
	"time"

	"github.com/xraph/tollgate/types"
)

// Reason values carried on access check results.
const (
	ReasonGranted       = "granted"
	ReasonAccessExpired = "access-expired"
	ReasonNotHeld       = "not-held"
	ReasonNoSuchTerms   = "no-such-terms"
)

// Ref identifies the (owner, vault) pair a grant gives access to.
type Ref struct {
	Owner   types.Principal `json:"owner"`
	VaultID string          `json:"vault_id"`
}

// Key returns the flat composite key grants are indexed by. The separator
// cannot appear in principals or vault identifiers supplied over JSON-safe
// surfaces, so the mapping is collision-free.
func (r Ref) Key() string {
	return string(r.Owner) + "\x1f" + r.VaultID
}

// Grant is a time-bounded, non-fungible entitlement held by a principal.
// Minted exactly once per settled purchase. Only Holder ever changes
// (transfer); expired grants are kept as historical records.
type Grant struct {
	types.Entity
	ID        uint64          `json:"id"`
	Holder    types.Principal `json:"holder"`
	Ref       Ref             `json:"ref"`
	ExpiresAt time.Time       `json:"expires_at"`
	MintedAt  time.Time       `json:"minted_at"`
}

// ValidAt reports whether the grant confers access at the given instant.
// The boundary is inclusive: a grant is still valid at its exact expiry.
func (g *Grant) ValidAt(now time.Time) bool {
	return !now.After(g.ExpiresAt)
}

// Deal is the immutable settlement record written alongside each grant.
type Deal struct {
	types.Entity
	GrantID  uint64          `json:"grant_id"`
	Owner    types.Principal `json:"owner"`
	ImageURL string          `json:"image_url"`
	Price    types.Money     `json:"price"`
}

// Result reports the outcome of an access check. ExpiresAt is the zero
// time unless access is granted.
type Result struct {
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
}
