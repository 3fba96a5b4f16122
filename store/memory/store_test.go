package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/vault"
)

func TestVaultRegistry(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	v := &vault.Vault{Entity: types.NewEntity(), ID: "vault-1", Owner: "alice"}
	if err := s.CreateVault(ctx, v); err != nil {
		t.Fatalf("CreateVault failed: %v", err)
	}

	got, err := s.GetVault(ctx, "vault-1")
	if err != nil {
		t.Fatalf("GetVault failed: %v", err)
	}
	if got.Owner != "alice" {
		t.Errorf("owner: got %q, want %q", got.Owner, "alice")
	}

	if err := s.CreateVault(ctx, v); !errors.Is(err, tollgate.ErrVaultAlreadyRegistered) {
		t.Errorf("expected ErrVaultAlreadyRegistered, got %v", err)
	}

	if _, err := s.GetVault(ctx, "missing"); !errors.Is(err, tollgate.ErrVaultNotFound) {
		t.Errorf("expected ErrVaultNotFound, got %v", err)
	}
}

func newSubscription(owner types.Principal, vaultID string, priceCents int64) (*subscription.Listing, *subscription.Terms) {
	l := &subscription.Listing{
		Entity:   types.NewEntity(),
		Owner:    owner,
		VaultID:  vaultID,
		ImageURL: subscription.DefaultImageURL,
	}
	tr := &subscription.Terms{
		Entity:   types.NewEntity(),
		Owner:    owner,
		VaultID:  vaultID,
		Price:    types.USD(priceCents),
		Duration: time.Hour,
	}
	return l, tr
}

func TestSubscriptionUpsert(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	l, tr := newSubscription("alice", "vault-1", 100)
	if err := s.SetSubscription(ctx, l, tr); err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}

	// Second set for the same key updates in place.
	l2, tr2 := newSubscription("alice", "vault-1", 250)
	l2.ImageURL = "https://example.com/new.png"
	if err := s.SetSubscription(ctx, l2, tr2); err != nil {
		t.Fatalf("SetSubscription update failed: %v", err)
	}

	count, err := s.CountListings(ctx, "alice")
	if err != nil {
		t.Fatalf("CountListings failed: %v", err)
	}
	if count != 1 {
		t.Errorf("listing count: got %d, want 1", count)
	}

	got, err := s.GetTerms(ctx, "alice", "vault-1")
	if err != nil {
		t.Fatalf("GetTerms failed: %v", err)
	}
	if !got.Price.Equal(types.USD(250)) {
		t.Errorf("price: got %v, want %v", got.Price, types.USD(250))
	}

	details, err := s.ListDetails(ctx, "alice")
	if err != nil {
		t.Fatalf("ListDetails failed: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("details: got %d entries, want 1", len(details))
	}
	if details[0].ImageURL != "https://example.com/new.png" {
		t.Errorf("image: got %q", details[0].ImageURL)
	}
	if !details[0].Price.Equal(types.USD(250)) {
		t.Errorf("detail price: got %v, want %v", details[0].Price, types.USD(250))
	}
}

func TestSubscriptionUpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	l, tr := newSubscription("alice", "vault-1", 100)
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.CreatedAt = first
	tr.CreatedAt = first
	if err := s.SetSubscription(ctx, l, tr); err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}

	l2, tr2 := newSubscription("alice", "vault-1", 250)
	if err := s.SetSubscription(ctx, l2, tr2); err != nil {
		t.Fatalf("SetSubscription update failed: %v", err)
	}

	gotListing, err := s.GetListing(ctx, "alice", "vault-1")
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if !gotListing.CreatedAt.Equal(first) {
		t.Errorf("listing CreatedAt: got %v, want %v", gotListing.CreatedAt, first)
	}

	gotTerms, err := s.GetTerms(ctx, "alice", "vault-1")
	if err != nil {
		t.Fatalf("GetTerms failed: %v", err)
	}
	if !gotTerms.CreatedAt.Equal(first) {
		t.Errorf("terms CreatedAt: got %v, want %v", gotTerms.CreatedAt, first)
	}
	if !gotTerms.Price.Equal(types.USD(250)) {
		t.Errorf("price after update: got %v, want %v", gotTerms.Price, types.USD(250))
	}
}

func TestSubscriptionDelete(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for _, vid := range []string{"v1", "v2", "v3"} {
		l, tr := newSubscription("alice", vid, 100)
		if err := s.SetSubscription(ctx, l, tr); err != nil {
			t.Fatalf("SetSubscription(%s) failed: %v", vid, err)
		}
	}

	// Remove the middle entry; the last one takes its slot.
	removed, err := s.DeleteSubscription(ctx, "alice", "v2")
	if err != nil {
		t.Fatalf("DeleteSubscription failed: %v", err)
	}
	if !removed {
		t.Fatal("expected removal of existing listing")
	}

	details, err := s.ListDetails(ctx, "alice")
	if err != nil {
		t.Fatalf("ListDetails failed: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("details: got %d entries, want 2", len(details))
	}
	seen := map[string]bool{}
	for _, d := range details {
		seen[d.VaultID] = true
	}
	if !seen["v1"] || !seen["v3"] || seen["v2"] {
		t.Errorf("unexpected surviving listings: %v", seen)
	}

	if _, err := s.GetTerms(ctx, "alice", "v2"); !errors.Is(err, tollgate.ErrTermsNotFound) {
		t.Errorf("expected ErrTermsNotFound after delete, got %v", err)
	}

	// Deleting a listing that does not exist is not an error.
	removed, err = s.DeleteSubscription(ctx, "alice", "v2")
	if err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	if removed {
		t.Error("expected no-op for missing listing")
	}
}

func TestGrantStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	ref := entitlement.Ref{Owner: "alice", VaultID: "v1"}
	g := &entitlement.Grant{
		Entity:    types.NewEntity(),
		ID:        1,
		Holder:    "bob",
		Ref:       ref,
		ExpiresAt: now.Add(time.Hour),
		MintedAt:  now,
	}
	if err := s.CreateGrant(ctx, g); err != nil {
		t.Fatalf("CreateGrant failed: %v", err)
	}

	held, err := s.GrantsByHolder(ctx, "bob")
	if err != nil {
		t.Fatalf("GrantsByHolder failed: %v", err)
	}
	if len(held) != 1 || held[0].ID != 1 {
		t.Fatalf("bob's grants: got %v", held)
	}

	if err := s.UpdateGrantHolder(ctx, 1, "carol"); err != nil {
		t.Fatalf("UpdateGrantHolder failed: %v", err)
	}

	held, err = s.GrantsByHolder(ctx, "bob")
	if err != nil {
		t.Fatalf("GrantsByHolder failed: %v", err)
	}
	if len(held) != 0 {
		t.Errorf("bob still indexed after transfer: %v", held)
	}

	held, err = s.GrantsByHolder(ctx, "carol")
	if err != nil {
		t.Fatalf("GrantsByHolder failed: %v", err)
	}
	if len(held) != 1 || held[0].Holder != "carol" {
		t.Errorf("carol's grants: got %v", held)
	}

	if err := s.UpdateGrantHolder(ctx, 99, "dave"); !errors.Is(err, tollgate.ErrGrantNotFound) {
		t.Errorf("expected ErrGrantNotFound, got %v", err)
	}

	maxID, err := s.MaxGrantID(ctx)
	if err != nil {
		t.Fatalf("MaxGrantID failed: %v", err)
	}
	if maxID != 1 {
		t.Errorf("MaxGrantID: got %d, want 1", maxID)
	}
}

func TestGrantsExpiredBetween(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, exp := range []time.Time{
		base.Add(-time.Hour),   // before the window
		base,                   // at from: excluded
		base.Add(time.Minute),  // inside
		base.Add(time.Hour),     // at to: included
		base.Add(2 * time.Hour), // after the window
	} {
		g := &entitlement.Grant{
			Entity:    types.NewEntity(),
			ID:        uint64(i + 1),
			Holder:    "bob",
			Ref:       entitlement.Ref{Owner: "alice", VaultID: "v1"},
			ExpiresAt: exp,
			MintedAt:  base.Add(-24 * time.Hour),
		}
		if err := s.CreateGrant(ctx, g); err != nil {
			t.Fatalf("CreateGrant failed: %v", err)
		}
	}

	got, err := s.GrantsExpiredBetween(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("GrantsExpiredBetween failed: %v", err)
	}
	ids := map[uint64]bool{}
	for _, g := range got {
		ids[g.ID] = true
	}
	if len(ids) != 2 || !ids[3] || !ids[4] {
		t.Errorf("window (from, to]: got ids %v, want {3, 4}", ids)
	}
}

func TestDealStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	d := &entitlement.Deal{
		Entity:   types.NewEntity(),
		GrantID:  7,
		Owner:    "alice",
		ImageURL: subscription.DefaultImageURL,
		Price:    types.USD(100),
	}
	if err := s.CreateDeal(ctx, d); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}

	got, err := s.GetDeal(ctx, 7)
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if got.Owner != "alice" || !got.Price.Equal(types.USD(100)) {
		t.Errorf("deal: got %+v", got)
	}

	if _, err := s.GetDeal(ctx, 8); !errors.Is(err, tollgate.ErrDealNotFound) {
		t.Errorf("expected ErrDealNotFound, got %v", err)
	}
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.AdjustBalance(ctx, "alice", types.USD(100)); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if err := s.AdjustBalance(ctx, "alice", types.USD(-40)); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	bal, err := s.Balance(ctx, "alice", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !bal.Equal(types.USD(60)) {
		t.Errorf("balance: got %v, want %v", bal, types.USD(60))
	}

	if err := s.AdjustBalance(ctx, "alice", types.USD(-61)); !errors.Is(err, tollgate.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	// Unknown accounts report zero.
	bal, err = s.Balance(ctx, "nobody", "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !bal.Equal(types.USD(0)) {
		t.Errorf("balance: got %v, want zero", bal)
	}
}
