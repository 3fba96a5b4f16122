// Package settlement implements the payment side of a purchase: the
// basis-point split of a price across the platform treasury, an optional
// revenue co-owner, and the vault owner, and the account book the
// resulting transfers run through.
package settlement

import (
	"github.com/xraph/tollgate/types"
)

// Split is the outcome of dividing a payment among the payees.
type Split struct {
	PlatformCut types.Money `json:"platform_cut"`
	CoOwnerCut  types.Money `json:"co_owner_cut"`
	OwnerTake   types.Money `json:"owner_take"`
	Refund      types.Money `json:"refund"`
}

// ComputeSplit divides price among the payees. The platform takes
// platformFeeBps of the gross price, the co-owner takes coSplitBps of what
// remains, and the owner receives the rest. Every division floors; the
// remainder stays with the owner. Refund is paid minus price. Callers pass
// coSplitBps of zero when the terms name no co-owner.
//
// ComputeSplit is pure: it moves no funds and never fails. Callers are
// responsible for bps ranges (0 to 10000) and for paid >= price.
func ComputeSplit(paid, price types.Money, platformFeeBps, coSplitBps int64) Split {
	platformCut := price.SplitBps(platformFeeBps)
	remaining := price.Subtract(platformCut)

	coCut := types.Zero(price.Currency)
	if coSplitBps > 0 {
		coCut = remaining.SplitBps(coSplitBps)
		remaining = remaining.Subtract(coCut)
	}

	return Split{
		PlatformCut: platformCut,
		CoOwnerCut:  coCut,
		OwnerTake:   remaining,
		Refund:      paid.Subtract(price),
	}
}
