package settlement

import (
	"context"
	"fmt"

	"github.com/xraph/tollgate/types"
)

// EscrowAccount is the reserved principal a purchase payment parks in
// while its legs execute. A failed leg leaves funds here, never with a
// payee.
const EscrowAccount types.Principal = "tollgate:escrow"

// Bank moves funds between principal accounts. Each Transfer must apply
// atomically (debit and credit together or not at all); the engine
// sequences transfers so that a failed leg aborts the purchase before any
// payee keeps money.
type Bank interface {
	Transfer(ctx context.Context, from, to types.Principal, amount types.Money) error
	Balance(ctx context.Context, account types.Principal) (types.Money, error)
	Deposit(ctx context.Context, account types.Principal, amount types.Money) error
}

// BalanceStore is the slice of the storage layer AccountBook runs on.
type BalanceStore interface {
	Balance(ctx context.Context, account types.Principal, currency string) (types.Money, error)
	AdjustBalance(ctx context.Context, account types.Principal, delta types.Money) error
}

// AccountBook is a Bank over the engine's own balance table. Debits fail
// when the account cannot cover them; the store enforces that balances
// never go negative.
type AccountBook struct {
	store    BalanceStore
	currency string
}

// NewAccountBook returns a Bank backed by the given balance store. All
// accounts are denominated in the single given currency.
func NewAccountBook(s BalanceStore, currency string) *AccountBook {
	return &AccountBook{store: s, currency: currency}
}

// Transfer debits from and credits to. A zero amount is a no-op.
func (b *AccountBook) Transfer(ctx context.Context, from, to types.Principal, amount types.Money) error {
	if amount.IsNegative() {
		return fmt.Errorf("settlement: negative transfer of %s", amount)
	}
	if amount.IsZero() {
		return nil
	}

	if err := b.store.AdjustBalance(ctx, from, amount.Negate()); err != nil {
		return fmt.Errorf("settlement: debit %s: %w", from, err)
	}
	if err := b.store.AdjustBalance(ctx, to, amount); err != nil {
		return fmt.Errorf("settlement: credit %s: %w", to, err)
	}

	return nil
}

// Balance reports the account's current balance. Accounts never seen
// before report zero.
func (b *AccountBook) Balance(ctx context.Context, account types.Principal) (types.Money, error) {
	return b.store.Balance(ctx, account, b.currency)
}

// Deposit credits an account from outside the engine.
func (b *AccountBook) Deposit(ctx context.Context, account types.Principal, amount types.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("settlement: non-positive deposit of %s", amount)
	}

	return b.store.AdjustBalance(ctx, account, amount)
}
