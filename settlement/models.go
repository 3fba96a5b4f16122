package settlement

import (
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/types"
)

// LegKind labels the role of a transfer within a settlement.
type LegKind string

const (
	LegEscrow      LegKind = "escrow"
	LegPlatformFee LegKind = "platform_fee"
	LegCoOwnerCut  LegKind = "co_owner_cut"
	LegOwnerTake   LegKind = "owner_take"
	LegRefund      LegKind = "refund"
)

// Leg is a single executed transfer within a settlement.
type Leg struct {
	Kind   LegKind         `json:"kind"`
	From   types.Principal `json:"from"`
	To     types.Principal `json:"to"`
	Amount types.Money     `json:"amount"`
}

// Receipt records every transfer behind one settled purchase. Receipts are
// handed to hook consumers for external indexing; the persisted audit row
// is the Deal.
type Receipt struct {
	ID      id.ReceiptID `json:"id"`
	GrantID uint64       `json:"grant_id"`
	Paid    types.Money  `json:"paid"`
	Legs    []Leg        `json:"legs"`
}
