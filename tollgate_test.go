package tollgate_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/settlement"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
)

var testBase = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock pins "now" for deterministic expiry and lock-window tests.
// The expiry watcher reads it from its own goroutine, hence the mutex.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testBase}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGate(t *testing.T, s *memory.Store, opts ...tollgate.Option) *tollgate.Gate {
	t.Helper()

	gate := tollgate.New(s, opts...)
	if err := gate.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if err := gate.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})

	return gate
}

func mustRegister(t *testing.T, g *tollgate.Gate, vaultID string, owner types.Principal) {
	t.Helper()
	if err := g.RegisterVault(context.Background(), vaultID, owner); err != nil {
		t.Fatalf("RegisterVault(%s): %v", vaultID, err)
	}
}

func mustSubscribe(t *testing.T, g *tollgate.Gate, owner types.Principal, vaultID string, price types.Money, duration time.Duration, coOwner types.Principal, splitBps int64) {
	t.Helper()
	if err := g.SetSubscription(context.Background(), owner, vaultID, price, duration, "", coOwner, splitBps); err != nil {
		t.Fatalf("SetSubscription(%s): %v", vaultID, err)
	}
}

func mustDeposit(t *testing.T, g *tollgate.Gate, account types.Principal, amount types.Money) {
	t.Helper()
	if err := g.Deposit(context.Background(), account, amount); err != nil {
		t.Fatalf("Deposit(%s): %v", account, err)
	}
}

func assertBalance(t *testing.T, g *tollgate.Gate, account types.Principal, want types.Money) {
	t.Helper()
	got, err := g.BalanceOf(context.Background(), account)
	if err != nil {
		t.Fatalf("BalanceOf(%s): %v", account, err)
	}
	if !got.Equal(want) {
		t.Errorf("balance of %s: got %v, want %v", account, got, want)
	}
}

func TestRegisterVault(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New())

	if err := gate.RegisterVault(ctx, "vault-1", "alice"); err != nil {
		t.Fatalf("RegisterVault failed: %v", err)
	}

	owner, err := gate.VaultOwner(ctx, "vault-1")
	if err != nil {
		t.Fatalf("VaultOwner failed: %v", err)
	}
	if owner != "alice" {
		t.Errorf("owner: got %q, want %q", owner, "alice")
	}

	t.Run("duplicate registration fails", func(t *testing.T) {
		err := gate.RegisterVault(ctx, "vault-1", "mallory")
		if !errors.Is(err, tollgate.ErrVaultAlreadyRegistered) {
			t.Fatalf("expected ErrVaultAlreadyRegistered, got %v", err)
		}

		// The original binding survives the attempt.
		owner, err := gate.VaultOwner(ctx, "vault-1")
		if err != nil {
			t.Fatalf("VaultOwner failed: %v", err)
		}
		if owner != "alice" {
			t.Errorf("owner after duplicate attempt: got %q, want %q", owner, "alice")
		}
	})

	t.Run("empty identifier rejected", func(t *testing.T) {
		if err := gate.RegisterVault(ctx, "", "alice"); !errors.Is(err, tollgate.ErrEmptyIdentifier) {
			t.Errorf("expected ErrEmptyIdentifier, got %v", err)
		}
	})

	t.Run("zero owner rejected", func(t *testing.T) {
		if err := gate.RegisterVault(ctx, "vault-2", ""); !errors.Is(err, tollgate.ErrZeroPrincipal) {
			t.Errorf("expected ErrZeroPrincipal, got %v", err)
		}
	})

	t.Run("unregistered vault reports zero owner", func(t *testing.T) {
		owner, err := gate.VaultOwner(ctx, "nowhere")
		if err != nil {
			t.Fatalf("VaultOwner failed: %v", err)
		}
		if !owner.IsZero() {
			t.Errorf("expected zero owner, got %q", owner)
		}
	})
}

func TestSetSubscription(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New())
	mustRegister(t, gate, "vault-1", "alice")

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name     string
			caller   types.Principal
			vaultID  string
			coOwner  types.Principal
			splitBps int64
			want     error
		}{
			{"empty vault id", "alice", "", "", 0, tollgate.ErrEmptyIdentifier},
			{"zero caller", "", "vault-1", "", 0, tollgate.ErrZeroPrincipal},
			{"not the owner", "mallory", "vault-1", "", 0, tollgate.ErrNotVaultOwner},
			{"unregistered vault", "alice", "vault-9", "", 0, tollgate.ErrNotVaultOwner},
			{"fee above 10000", "alice", "vault-1", "bob", 10001, tollgate.ErrInvalidFee},
			{"negative fee", "alice", "vault-1", "bob", -1, tollgate.ErrInvalidFee},
			{"co-owner is caller", "alice", "vault-1", "alice", 5000, tollgate.ErrSameCoOwner},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := gate.SetSubscription(ctx, tt.caller, tt.vaultID, types.USD(100), time.Hour, "", tt.coOwner, tt.splitBps)
				if !errors.Is(err, tt.want) {
					t.Errorf("got %v, want %v", err, tt.want)
				}
			})
		}
	})

	t.Run("currency mismatch", func(t *testing.T) {
		// Terms must be priced in the engine currency; a mismatch would
		// otherwise surface only at settlement.
		err := gate.SetSubscription(ctx, "alice", "vault-1", types.EUR(100), time.Hour, "", "", 0)
		if !errors.Is(err, tollgate.ErrInvalidAmount) {
			t.Errorf("got %v, want ErrInvalidAmount", err)
		}
	})

	t.Run("create then list", func(t *testing.T) {
		mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), 24*time.Hour, "bob", 5000)

		details, err := gate.ListSubscriptions(ctx, "alice")
		if err != nil {
			t.Fatalf("ListSubscriptions failed: %v", err)
		}
		if len(details) != 1 {
			t.Fatalf("listings: got %d, want 1", len(details))
		}

		d := details[0]
		if d.VaultID != "vault-1" {
			t.Errorf("vault id: got %q", d.VaultID)
		}
		if !d.Price.Equal(types.USD(100)) {
			t.Errorf("price: got %v", d.Price)
		}
		if d.Duration != 24*time.Hour {
			t.Errorf("duration: got %v", d.Duration)
		}
		if d.CoOwner != "bob" || d.SplitFeeBps != 5000 {
			t.Errorf("split: got %q/%d", d.CoOwner, d.SplitFeeBps)
		}
		if d.ImageURL != subscription.DefaultImageURL {
			t.Errorf("empty image should fall back to default, got %q", d.ImageURL)
		}
	})

	t.Run("update in place", func(t *testing.T) {
		err := gate.SetSubscription(ctx, "alice", "vault-1", types.USD(250), 48*time.Hour, "https://img.example/v1.png", "", 0)
		if err != nil {
			t.Fatalf("SetSubscription update failed: %v", err)
		}

		details, err := gate.ListSubscriptions(ctx, "alice")
		if err != nil {
			t.Fatalf("ListSubscriptions failed: %v", err)
		}
		if len(details) != 1 {
			t.Fatalf("update must not grow the listing: got %d entries", len(details))
		}

		d := details[0]
		if !d.Price.Equal(types.USD(250)) || d.Duration != 48*time.Hour {
			t.Errorf("latest terms should win: got %v / %v", d.Price, d.Duration)
		}
		if !d.CoOwner.IsZero() || d.SplitFeeBps != 0 {
			t.Errorf("co-owner should clear on update: got %q/%d", d.CoOwner, d.SplitFeeBps)
		}
		if d.ImageURL != "https://img.example/v1.png" {
			t.Errorf("image url: got %q", d.ImageURL)
		}
	})

	t.Run("list zero principal", func(t *testing.T) {
		if _, err := gate.ListSubscriptions(ctx, ""); !errors.Is(err, tollgate.ErrZeroPrincipal) {
			t.Errorf("expected ErrZeroPrincipal, got %v", err)
		}
	})

	t.Run("list owner with no subscriptions", func(t *testing.T) {
		details, err := gate.ListSubscriptions(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListSubscriptions failed: %v", err)
		}
		if len(details) != 0 {
			t.Errorf("expected empty list, got %d entries", len(details))
		}
	})
}

func TestDeleteSubscription(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New())
	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "", 0)

	if err := gate.DeleteSubscription(ctx, "alice", "vault-1"); err != nil {
		t.Fatalf("DeleteSubscription failed: %v", err)
	}

	details, err := gate.ListSubscriptions(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSubscriptions failed: %v", err)
	}
	if len(details) != 0 {
		t.Errorf("expected empty list after delete, got %d entries", len(details))
	}

	t.Run("deleting a missing listing is a no-op", func(t *testing.T) {
		if err := gate.DeleteSubscription(ctx, "alice", "vault-1"); err != nil {
			t.Errorf("second delete should be silent, got %v", err)
		}
		if err := gate.DeleteSubscription(ctx, "alice", "never-listed"); err != nil {
			t.Errorf("deleting unknown vault should be silent, got %v", err)
		}
	})

	t.Run("empty identifier rejected", func(t *testing.T) {
		if err := gate.DeleteSubscription(ctx, "alice", ""); !errors.Is(err, tollgate.ErrEmptyIdentifier) {
			t.Errorf("expected ErrEmptyIdentifier, got %v", err)
		}
	})
}

func TestPurchaseSettlement(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	gate := newGate(t, memory.New(),
		tollgate.WithClock(clk.Now),
		tollgate.WithPlatformFee(1200),
		tollgate.WithTreasury("platform-treasury"),
	)

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), 7*24*time.Hour, "bob", 5000)
	mustDeposit(t, gate, "carol", types.USD(100))

	grant, receipt, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	if grant.ID != 1 {
		t.Errorf("first grant id: got %d, want 1", grant.ID)
	}
	if grant.Holder != "carol" {
		t.Errorf("holder: got %q", grant.Holder)
	}
	if !grant.MintedAt.Equal(testBase) {
		t.Errorf("minted at: got %v, want %v", grant.MintedAt, testBase)
	}
	if want := testBase.Add(7 * 24 * time.Hour); !grant.ExpiresAt.Equal(want) {
		t.Errorf("expires at: got %v, want %v", grant.ExpiresAt, want)
	}

	// 12% platform fee off the top, then half of the remaining 88 to the
	// co-owner, the rest to the owner.
	assertBalance(t, gate, "platform-treasury", types.USD(12))
	assertBalance(t, gate, "bob", types.USD(44))
	assertBalance(t, gate, "alice", types.USD(44))
	assertBalance(t, gate, "carol", types.USD(0))
	assertBalance(t, gate, settlement.EscrowAccount, types.USD(0))

	if receipt.ID.IsNil() {
		t.Error("receipt should carry a minted id")
	}
	if receipt.GrantID != grant.ID {
		t.Errorf("receipt grant id: got %d, want %d", receipt.GrantID, grant.ID)
	}
	if !receipt.Paid.Equal(types.USD(100)) {
		t.Errorf("receipt paid: got %v", receipt.Paid)
	}
	if len(receipt.Legs) != 4 {
		t.Fatalf("exact payment settles in 4 legs, got %d: %+v", len(receipt.Legs), receipt.Legs)
	}
	if receipt.Legs[0].Kind != settlement.LegEscrow || !receipt.Legs[0].Amount.Equal(types.USD(100)) {
		t.Errorf("first leg should move the full payment into escrow: %+v", receipt.Legs[0])
	}

	t.Run("grant info", func(t *testing.T) {
		got, err := gate.GrantInfo(ctx, grant.ID)
		if err != nil {
			t.Fatalf("GrantInfo failed: %v", err)
		}
		if got.Holder != "carol" || got.Ref.Owner != "alice" || got.Ref.VaultID != "vault-1" {
			t.Errorf("grant info mismatch: %+v", got)
		}

		if _, err := gate.GrantInfo(ctx, 999); !errors.Is(err, tollgate.ErrGrantNotFound) {
			t.Errorf("expected ErrGrantNotFound, got %v", err)
		}
	})

	t.Run("deal recorded", func(t *testing.T) {
		deal, err := gate.DealInfo(ctx, grant.ID)
		if err != nil {
			t.Fatalf("DealInfo failed: %v", err)
		}
		if deal.Owner != "alice" {
			t.Errorf("deal owner: got %q", deal.Owner)
		}
		if !deal.Price.Equal(types.USD(100)) {
			t.Errorf("deal price: got %v", deal.Price)
		}
		if deal.ImageURL != subscription.DefaultImageURL {
			t.Errorf("deal image: got %q", deal.ImageURL)
		}
	})
}

func TestPurchaseOverpayment(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New(),
		tollgate.WithPlatformFee(1200),
		tollgate.WithTreasury("platform-treasury"),
	)

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "bob", 5000)
	mustDeposit(t, gate, "carol", types.USD(150))

	_, receipt, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(150))
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	// The split prices off terms, not the overpayment; the excess comes
	// straight back.
	assertBalance(t, gate, "carol", types.USD(50))
	assertBalance(t, gate, "platform-treasury", types.USD(12))
	assertBalance(t, gate, "bob", types.USD(44))
	assertBalance(t, gate, "alice", types.USD(44))
	assertBalance(t, gate, settlement.EscrowAccount, types.USD(0))

	last := receipt.Legs[len(receipt.Legs)-1]
	if last.Kind != settlement.LegRefund || !last.Amount.Equal(types.USD(50)) || last.To != "carol" {
		t.Errorf("expected closing refund leg of $0.50 to carol, got %+v", last)
	}
}

func TestPurchaseFreeVault(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New())

	mustRegister(t, gate, "vault-free", "alice")
	mustSubscribe(t, gate, "alice", "vault-free", types.USD(0), time.Hour, "", 0)

	// No deposit: zero-price purchases move no funds at all.
	grant, receipt, err := gate.Purchase(ctx, "carol", "alice", "vault-free", "carol", types.USD(0))
	if err != nil {
		t.Fatalf("free purchase failed: %v", err)
	}
	if grant.ID != 1 {
		t.Errorf("grant id: got %d", grant.ID)
	}
	if len(receipt.Legs) != 0 {
		t.Errorf("free purchase should settle without legs, got %+v", receipt.Legs)
	}

	result, err := gate.HasAccess(ctx, "alice", "vault-free", "carol")
	if err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if !result.Granted {
		t.Errorf("free purchase should still grant access: %+v", result)
	}
}

func TestPurchaseValidation(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New(),
		tollgate.WithPlatformFee(1200),
		tollgate.WithTreasury("platform-treasury"),
	)

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "", 0)
	mustDeposit(t, gate, "carol", types.USD(500))

	tests := []struct {
		name       string
		caller     types.Principal
		vaultOwner types.Principal
		vaultID    string
		receiver   types.Principal
		paid       types.Money
		want       error
	}{
		{"zero vault owner", "carol", "", "vault-1", "carol", types.USD(100), tollgate.ErrZeroPrincipal},
		{"zero receiver", "carol", "alice", "vault-1", "", types.USD(100), tollgate.ErrZeroPrincipal},
		{"zero caller", "", "alice", "vault-1", "carol", types.USD(100), tollgate.ErrZeroPrincipal},
		{"empty vault id", "carol", "alice", "", "carol", types.USD(100), tollgate.ErrEmptyIdentifier},
		{"no terms", "carol", "alice", "vault-9", "carol", types.USD(100), tollgate.ErrTermsNotFound},
		{"payment below price", "carol", "alice", "vault-1", "carol", types.USD(99), tollgate.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := gate.Purchase(ctx, tt.caller, tt.vaultOwner, tt.vaultID, tt.receiver, tt.paid)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("insufficient payment carries the price", func(t *testing.T) {
		_, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(40))

		var fundsErr *tollgate.InsufficientFundsError
		if !errors.As(err, &fundsErr) {
			t.Fatalf("expected *InsufficientFundsError, got %v", err)
		}
		if !fundsErr.Required.Equal(types.USD(100)) {
			t.Errorf("required: got %v, want %v", fundsErr.Required, types.USD(100))
		}
		if !fundsErr.Paid.Equal(types.USD(40)) {
			t.Errorf("paid: got %v, want %v", fundsErr.Paid, types.USD(40))
		}

		// Nothing minted, nothing moved.
		if _, err := gate.GrantInfo(ctx, 1); !errors.Is(err, tollgate.ErrGrantNotFound) {
			t.Errorf("failed purchase must not mint: %v", err)
		}
		assertBalance(t, gate, "carol", types.USD(500))
		assertBalance(t, gate, "alice", types.USD(0))
	})

	t.Run("unfunded caller", func(t *testing.T) {
		_, _, err := gate.Purchase(ctx, "penniless", "alice", "vault-1", "penniless", types.USD(100))
		if !errors.Is(err, tollgate.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		assertBalance(t, gate, "alice", types.USD(0))
		assertBalance(t, gate, settlement.EscrowAccount, types.USD(0))
	})
}

func TestPurchaseTreasuryNotConfigured(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New(), tollgate.WithPlatformFee(1200))

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "", 0)
	mustDeposit(t, gate, "carol", types.USD(100))

	_, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))
	if !errors.Is(err, tollgate.ErrTreasuryNotConfigured) {
		t.Fatalf("expected ErrTreasuryNotConfigured, got %v", err)
	}
	assertBalance(t, gate, "carol", types.USD(100))
}

func TestPurchaseAlreadyEntitled(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	gate := newGate(t, memory.New(), tollgate.WithClock(clk.Now))

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "", 0)
	mustDeposit(t, gate, "carol", types.USD(300))

	first, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))
	if err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}

	_, _, err = gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))
	if !errors.Is(err, tollgate.ErrAlreadyEntitled) {
		t.Fatalf("expected ErrAlreadyEntitled, got %v", err)
	}
	assertBalance(t, gate, "carol", types.USD(200))

	// Once the first grant lapses, a fresh purchase mints a new,
	// larger id. The expired grant stays on record.
	clk.Advance(time.Hour + time.Second)

	second, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))
	if err != nil {
		t.Fatalf("re-purchase after expiry failed: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("new grant id %d should exceed %d", second.ID, first.ID)
	}
	if _, err := gate.GrantInfo(ctx, first.ID); err != nil {
		t.Errorf("expired grant should remain readable: %v", err)
	}
}

// vetoBank fails any transfer into one account, standing in for a
// payment backend rejecting a payee mid-settlement.
type vetoBank struct {
	*settlement.AccountBook
	veto types.Principal
}

var errVetoed = errors.New("account rejected by provider")

func (b *vetoBank) Transfer(ctx context.Context, from, to types.Principal, amount types.Money) error {
	if to == b.veto {
		return errVetoed
	}
	return b.AccountBook.Transfer(ctx, from, to, amount)
}

func TestPurchaseSettlementLegFailure(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	gate := newGate(t, s,
		tollgate.WithPlatformFee(1200),
		tollgate.WithTreasury("platform-treasury"),
		tollgate.WithBank(&vetoBank{
			AccountBook: settlement.NewAccountBook(s, "usd"),
			veto:        "platform-treasury",
		}),
	)

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "bob", 5000)
	mustDeposit(t, gate, "carol", types.USD(100))

	_, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))

	var settleErr *tollgate.SettlementError
	if !errors.As(err, &settleErr) {
		t.Fatalf("expected *SettlementError, got %v", err)
	}
	if settleErr.Leg != settlement.LegPlatformFee {
		t.Errorf("failed leg: got %s, want %s", settleErr.Leg, settlement.LegPlatformFee)
	}
	if !errors.Is(err, errVetoed) {
		t.Errorf("settlement error should unwrap to the transfer failure, got %v", err)
	}

	// The purchase aborted: no grant, no payee paid. The payment sits in
	// escrow, never with a payee.
	if _, err := gate.GrantInfo(ctx, 1); !errors.Is(err, tollgate.ErrGrantNotFound) {
		t.Errorf("aborted purchase must not mint: %v", err)
	}
	assertBalance(t, gate, "alice", types.USD(0))
	assertBalance(t, gate, "bob", types.USD(0))
	assertBalance(t, gate, "platform-treasury", types.USD(0))
	assertBalance(t, gate, settlement.EscrowAccount, types.USD(100))

	result, err := gate.HasAccess(ctx, "alice", "vault-1", "carol")
	if err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if result.Granted || result.Reason != entitlement.ReasonNotHeld {
		t.Errorf("aborted purchase must not grant access: %+v", result)
	}
}

func TestHasAccess(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	gate := newGate(t, memory.New(), tollgate.WithClock(clk.Now))

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "", 0)
	mustDeposit(t, gate, "carol", types.USD(100))

	if _, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100)); err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	t.Run("granted after purchase", func(t *testing.T) {
		result, err := gate.HasAccess(ctx, "alice", "vault-1", "carol")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if !result.Granted || result.Reason != entitlement.ReasonGranted {
			t.Fatalf("expected granted, got %+v", result)
		}
		if want := testBase.Add(time.Hour); !result.ExpiresAt.Equal(want) {
			t.Errorf("expires at: got %v, want %v", result.ExpiresAt, want)
		}
	})

	t.Run("still granted at the exact expiry instant", func(t *testing.T) {
		clk.Advance(time.Hour)

		result, err := gate.HasAccess(ctx, "alice", "vault-1", "carol")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if !result.Granted {
			t.Errorf("expiry boundary is inclusive, got %+v", result)
		}
	})

	t.Run("expired one second later", func(t *testing.T) {
		clk.Advance(time.Second)

		result, err := gate.HasAccess(ctx, "alice", "vault-1", "carol")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if result.Granted || result.Reason != entitlement.ReasonAccessExpired {
			t.Errorf("expected access-expired, got %+v", result)
		}
		if !result.ExpiresAt.IsZero() {
			t.Errorf("denied result should carry the zero time, got %v", result.ExpiresAt)
		}
	})

	t.Run("not held for a stranger", func(t *testing.T) {
		result, err := gate.HasAccess(ctx, "alice", "vault-1", "dave")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if result.Granted || result.Reason != entitlement.ReasonNotHeld {
			t.Errorf("expected not-held, got %+v", result)
		}
	})

	t.Run("no such terms", func(t *testing.T) {
		result, err := gate.HasAccess(ctx, "alice", "vault-unknown", "carol")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if result.Granted || result.Reason != entitlement.ReasonNoSuchTerms {
			t.Errorf("expected no-such-terms, got %+v", result)
		}
	})

	t.Run("terms deleted out from under a live grant", func(t *testing.T) {
		// The terms check runs first, so a delisted vault reports
		// no-such-terms even to a holder whose grant is still on record.
		if err := gate.DeleteSubscription(ctx, "alice", "vault-1"); err != nil {
			t.Fatalf("DeleteSubscription failed: %v", err)
		}

		result, err := gate.HasAccess(ctx, "alice", "vault-1", "carol")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if result.Reason != entitlement.ReasonNoSuchTerms {
			t.Errorf("expected no-such-terms after delist, got %+v", result)
		}
	})
}

func TestHasAnyAccess(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New())

	mustRegister(t, gate, "vault-1", "alice")
	mustRegister(t, gate, "vault-2", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), time.Hour, "", 0)
	mustSubscribe(t, gate, "alice", "vault-2", types.USD(200), time.Hour, "", 0)
	mustDeposit(t, gate, "carol", types.USD(200))

	if _, _, err := gate.Purchase(ctx, "carol", "alice", "vault-2", "carol", types.USD(200)); err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	got, err := gate.HasAnyAccess(ctx, "alice", "carol")
	if err != nil {
		t.Fatalf("HasAnyAccess failed: %v", err)
	}
	if !got {
		t.Error("carol holds vault-2 and should have access to something of alice's")
	}

	got, err = gate.HasAnyAccess(ctx, "alice", "dave")
	if err != nil {
		t.Fatalf("HasAnyAccess failed: %v", err)
	}
	if got {
		t.Error("dave purchased nothing and should have no access")
	}

	t.Run("zero principals are false, not errors", func(t *testing.T) {
		for _, pair := range [][2]types.Principal{{"", "carol"}, {"alice", ""}, {"", ""}} {
			got, err := gate.HasAnyAccess(ctx, pair[0], pair[1])
			if err != nil {
				t.Fatalf("HasAnyAccess(%q, %q) failed: %v", pair[0], pair[1], err)
			}
			if got {
				t.Errorf("HasAnyAccess(%q, %q) = true", pair[0], pair[1])
			}
		}
	})
}

func TestTransferGrant(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	gate := newGate(t, memory.New(), tollgate.WithClock(clk.Now))

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), 7*24*time.Hour, "", 0)
	mustDeposit(t, gate, "carol", types.USD(100))

	grant, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	t.Run("locked inside the window", func(t *testing.T) {
		err := gate.TransferGrant(ctx, "carol", grant.ID, "dave")

		var lockErr *tollgate.TransferLockedError
		if !errors.As(err, &lockErr) {
			t.Fatalf("expected *TransferLockedError, got %v", err)
		}
		if !errors.Is(err, tollgate.ErrTransferLocked) {
			t.Error("lock error should match ErrTransferLocked")
		}
		if want := testBase.Add(tollgate.DefaultLockPeriod); !lockErr.UnlocksAt.Equal(want) {
			t.Errorf("unlocks at: got %v, want %v", lockErr.UnlocksAt, want)
		}
	})

	t.Run("still locked one second before the boundary", func(t *testing.T) {
		clk.Advance(tollgate.DefaultLockPeriod - time.Second)

		if err := gate.TransferGrant(ctx, "carol", grant.ID, "dave"); !errors.Is(err, tollgate.ErrTransferLocked) {
			t.Fatalf("expected ErrTransferLocked, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		if err := gate.TransferGrant(ctx, "carol", grant.ID, ""); !errors.Is(err, tollgate.ErrZeroPrincipal) {
			t.Errorf("zero target: got %v", err)
		}
		if err := gate.TransferGrant(ctx, "mallory", grant.ID, "dave"); !errors.Is(err, tollgate.ErrNotGrantHolder) {
			t.Errorf("non-holder: got %v", err)
		}
		if err := gate.TransferGrant(ctx, "carol", 999, "dave"); !errors.Is(err, tollgate.ErrGrantNotFound) {
			t.Errorf("missing grant: got %v", err)
		}
	})

	t.Run("transfers after the window", func(t *testing.T) {
		clk.Advance(time.Second) // exactly mint + lock period

		if err := gate.TransferGrant(ctx, "carol", grant.ID, "dave"); err != nil {
			t.Fatalf("TransferGrant failed: %v", err)
		}

		moved, err := gate.GrantInfo(ctx, grant.ID)
		if err != nil {
			t.Fatalf("GrantInfo failed: %v", err)
		}
		if moved.Holder != "dave" {
			t.Errorf("holder: got %q, want %q", moved.Holder, "dave")
		}
		if !moved.ExpiresAt.Equal(grant.ExpiresAt) {
			t.Errorf("transfer must not touch expiry: got %v, want %v", moved.ExpiresAt, grant.ExpiresAt)
		}
		if !moved.MintedAt.Equal(grant.MintedAt) {
			t.Errorf("transfer must not touch mint time: got %v, want %v", moved.MintedAt, grant.MintedAt)
		}

		// Access follows the holder.
		result, err := gate.HasAccess(ctx, "alice", "vault-1", "dave")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if !result.Granted {
			t.Errorf("new holder should have access: %+v", result)
		}

		result, err = gate.HasAccess(ctx, "alice", "vault-1", "carol")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if result.Granted || result.Reason != entitlement.ReasonNotHeld {
			t.Errorf("old holder should be not-held: %+v", result)
		}
	})

	t.Run("target already entitled", func(t *testing.T) {
		// Dave now holds the transferred grant; buying carol a fresh one
		// and pushing it to dave would double him up.
		mustDeposit(t, gate, "carol", types.USD(100))
		fresh, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(100))
		if err != nil {
			t.Fatalf("Purchase failed: %v", err)
		}

		clk.Advance(tollgate.DefaultLockPeriod)

		if err := gate.TransferGrant(ctx, "carol", fresh.ID, "dave"); !errors.Is(err, tollgate.ErrAlreadyEntitled) {
			t.Fatalf("expected ErrAlreadyEntitled, got %v", err)
		}
	})
}

func TestDepositAndBalance(t *testing.T) {
	ctx := context.Background()
	gate := newGate(t, memory.New())

	if err := gate.Deposit(ctx, "", types.USD(100)); !errors.Is(err, tollgate.ErrZeroPrincipal) {
		t.Errorf("zero account: got %v", err)
	}
	if err := gate.Deposit(ctx, "carol", types.USD(0)); !errors.Is(err, tollgate.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if err := gate.Deposit(ctx, "carol", types.USD(-10)); !errors.Is(err, tollgate.ErrInvalidAmount) {
		t.Errorf("negative amount: got %v", err)
	}

	mustDeposit(t, gate, "carol", types.USD(100))
	mustDeposit(t, gate, "carol", types.USD(25))
	assertBalance(t, gate, "carol", types.USD(125))

	// Accounts never funded report zero in the engine currency.
	assertBalance(t, gate, "stranger", types.USD(0))
}

func TestStartSeedsGrantCounter(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	first := tollgate.New(s)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	mustRegister(t, first, "vault-1", "alice")
	mustSubscribe(t, first, "alice", "vault-1", types.USD(0), 0, "", 0)

	grant, _, err := first.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(0))
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}
	if grant.ID != 1 {
		t.Fatalf("grant id: got %d, want 1", grant.ID)
	}
	if err := first.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A second engine over the same store resumes the counter instead of
	// reissuing id 1.
	second := newGate(t, s)

	next, _, err := second.Purchase(ctx, "dave", "alice", "vault-1", "dave", types.USD(0))
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}
	if next.ID != 2 {
		t.Errorf("resumed grant id: got %d, want 2", next.ID)
	}
}

// spyPlugin records every hook it sees, in emission order.
type spyPlugin struct {
	mu     sync.Mutex
	events []string
}

func (p *spyPlugin) Name() string { return "spy" }

func (p *spyPlugin) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *spyPlugin) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	copy(out, p.events)
	return out
}

func (p *spyPlugin) OnVaultRegistered(_ context.Context, vaultID, owner string) error {
	p.record("vault-registered:" + vaultID + ":" + owner)
	return nil
}

func (p *spyPlugin) OnSubscriptionCreated(_ context.Context, owner, vaultID string, _ interface{}) error {
	p.record("subscription-created:" + vaultID)
	return nil
}

func (p *spyPlugin) OnSubscriptionUpdated(_ context.Context, owner, vaultID string, _, _ interface{}) error {
	p.record("subscription-updated:" + vaultID)
	return nil
}

func (p *spyPlugin) OnSubscriptionDeleted(_ context.Context, owner, vaultID string) error {
	p.record("subscription-deleted:" + vaultID)
	return nil
}

func (p *spyPlugin) OnAccessGranted(_ context.Context, grant interface{}, _ interface{}) error {
	g, ok := grant.(*entitlement.Grant)
	if !ok {
		p.record("access-granted:?")
		return nil
	}
	p.record(fmt.Sprintf("access-granted:%d", g.ID))
	return nil
}

func (p *spyPlugin) OnGrantTransferred(_ context.Context, grantID uint64, from, to string) error {
	p.record(fmt.Sprintf("grant-transferred:%d:%s:%s", grantID, from, to))
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	spy := &spyPlugin{}
	gate := newGate(t, memory.New(),
		tollgate.WithClock(clk.Now),
		tollgate.WithPlugin(spy),
	)

	mustRegister(t, gate, "vault-1", "alice")
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(100), 7*24*time.Hour, "", 0)
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(200), 7*24*time.Hour, "", 0)
	mustDeposit(t, gate, "carol", types.USD(200))

	grant, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(200))
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	clk.Advance(tollgate.DefaultLockPeriod)
	if err := gate.TransferGrant(ctx, "carol", grant.ID, "dave"); err != nil {
		t.Fatalf("TransferGrant failed: %v", err)
	}

	if err := gate.DeleteSubscription(ctx, "alice", "vault-1"); err != nil {
		t.Fatalf("DeleteSubscription failed: %v", err)
	}
	// Silent no-op deletes stay silent in the hooks too.
	if err := gate.DeleteSubscription(ctx, "alice", "vault-1"); err != nil {
		t.Fatalf("DeleteSubscription failed: %v", err)
	}

	want := []string{
		"vault-registered:vault-1:alice",
		"subscription-created:vault-1",
		"subscription-updated:vault-1",
		"access-granted:1",
		"grant-transferred:1:carol:dave",
		"subscription-deleted:vault-1",
	}

	got := spy.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// expirySpy forwards expired grant ids off the watcher goroutine.
type expirySpy struct {
	expired chan uint64
}

func (p *expirySpy) Name() string { return "expiry-spy" }

func (p *expirySpy) OnGrantExpired(_ context.Context, grant interface{}) error {
	if g, ok := grant.(*entitlement.Grant); ok {
		select {
		case p.expired <- g.ID:
		default:
		}
	}
	return nil
}

func TestExpiryWatcher(t *testing.T) {
	ctx := context.Background()
	spy := &expirySpy{expired: make(chan uint64, 1)}
	gate := newGate(t, memory.New(),
		tollgate.WithExpiryCheckInterval(10*time.Millisecond),
		tollgate.WithPlugin(spy),
	)

	mustRegister(t, gate, "vault-1", "alice")
	// Zero duration: the grant expires at its own mint instant, so the
	// next sweep picks it up.
	mustSubscribe(t, gate, "alice", "vault-1", types.USD(0), 0, "", 0)

	grant, _, err := gate.Purchase(ctx, "carol", "alice", "vault-1", "carol", types.USD(0))
	if err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	select {
	case id := <-spy.expired:
		if id != grant.ID {
			t.Errorf("expired grant id: got %d, want %d", id, grant.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expiry watcher never reported the lapsed grant")
	}

	// The lapsed grant is reported, not removed.
	if _, err := gate.GrantInfo(ctx, grant.ID); err != nil {
		t.Errorf("expired grant should remain readable: %v", err)
	}
}
