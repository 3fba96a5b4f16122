package subscription

import (
	"time"

	"github.com/xraph/tollgate/types"
)

// DefaultImageURL replaces an empty display image on new or updated listings.
const DefaultImageURL = "https://cdn.xraph.com/tollgate/vault-cover.png"

// Listing is one entry in an owner's public catalog: a vault they offer
// plus its display image. Listings and their Terms share a lifecycle: a
// subscription upsert writes both and a delete removes both.
type Listing struct {
	types.Entity
	Owner    types.Principal `json:"owner"`
	VaultID  string          `json:"vault_id"`
	ImageURL string          `json:"image_url"`
}

// Terms carries the commercial side of a listing, keyed by (owner, vault).
type Terms struct {
	types.Entity
	Owner       types.Principal `json:"owner"`
	VaultID     string          `json:"vault_id"`
	Price       types.Money     `json:"price"`
	Duration    time.Duration   `json:"duration"`
	CoOwner     types.Principal `json:"co_owner,omitempty"`
	SplitFeeBps int64           `json:"split_fee_bps"`
}

// HasCoSplit reports whether settlement routes a share to a co-owner.
func (t *Terms) HasCoSplit() bool {
	return !t.CoOwner.IsZero() && t.SplitFeeBps > 0
}

// Detail is the joined listing+terms view returned to catalog readers.
// It is assembled at read time, so it never lags a terms update.
type Detail struct {
	VaultID     string          `json:"vault_id"`
	ImageURL    string          `json:"image_url"`
	Price       types.Money     `json:"price"`
	Duration    time.Duration   `json:"duration"`
	CoOwner     types.Principal `json:"co_owner,omitempty"`
	SplitFeeBps int64           `json:"split_fee_bps"`
}
