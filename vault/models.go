package vault

import (
	"github.com/xraph/tollgate/types"
)

// Vault binds a content identifier to its owning principal. The binding is
// permanent: registered once, never transferred, never deleted.
type Vault struct {
	types.Entity
	ID    string          `json:"id"`
	Owner types.Principal `json:"owner"`
}
