package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/tollgate"
	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/vault"
)

type Store struct {
	mu sync.RWMutex

	// Vault registry
	vaults map[string]*vault.Vault

	// Listings per owner; terms flat by reference key
	listings map[types.Principal][]*subscription.Listing
	terms    map[string]*subscription.Terms

	// Grants by id plus a holder index for access scans
	grants   map[uint64]*entitlement.Grant
	byHolder map[types.Principal][]uint64

	// Deals by grant id
	deals map[uint64]*entitlement.Deal

	// Account balances in smallest currency units
	balances map[types.Principal]int64
}

func New() *Store {
	return &Store{
		vaults:   make(map[string]*vault.Vault),
		listings: make(map[types.Principal][]*subscription.Listing),
		terms:    make(map[string]*subscription.Terms),
		grants:   make(map[uint64]*entitlement.Grant),
		byHolder: make(map[types.Principal][]uint64),
		deals:    make(map[uint64]*entitlement.Deal),
		balances: make(map[types.Principal]int64),
	}
}

func refKey(owner types.Principal, vaultID string) string {
	return entitlement.Ref{Owner: owner, VaultID: vaultID}.Key()
}

// Vault Store implementation

func (s *Store) CreateVault(_ context.Context, v *vault.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vaults[v.ID]; exists {
		return tollgate.ErrVaultAlreadyRegistered
	}
	s.vaults[v.ID] = v
	return nil
}

func (s *Store) GetVault(_ context.Context, vaultID string) (*vault.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.vaults[vaultID]; ok {
		return v, nil
	}
	return nil, tollgate.ErrVaultNotFound
}

// Subscription Store implementation

func (s *Store) SetSubscription(_ context.Context, l *subscription.Listing, t *subscription.Terms) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.listings[l.Owner]
	replaced := false
	for i, existing := range entries {
		if existing.VaultID == l.VaultID {
			// Preserve creation time across replaces, like the SQL
			// backends do on conflict.
			l.CreatedAt = existing.CreatedAt
			entries[i] = l
			replaced = true
			break
		}
	}
	if !replaced {
		s.listings[l.Owner] = append(entries, l)
	}

	if prior, ok := s.terms[refKey(t.Owner, t.VaultID)]; ok {
		t.CreatedAt = prior.CreatedAt
	}
	s.terms[refKey(t.Owner, t.VaultID)] = t
	return nil
}

func (s *Store) DeleteSubscription(_ context.Context, owner types.Principal, vaultID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.listings[owner]
	for i, l := range entries {
		if l.VaultID == vaultID {
			// Swap with the last entry and shrink; listing order carries
			// no meaning, so O(1) removal is fine.
			entries[i] = entries[len(entries)-1]
			s.listings[owner] = entries[:len(entries)-1]
			delete(s.terms, refKey(owner, vaultID))
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetTerms(_ context.Context, owner types.Principal, vaultID string) (*subscription.Terms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.terms[refKey(owner, vaultID)]; ok {
		return t, nil
	}
	return nil, tollgate.ErrTermsNotFound
}

func (s *Store) GetListing(_ context.Context, owner types.Principal, vaultID string) (*subscription.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.listings[owner] {
		if l.VaultID == vaultID {
			return l, nil
		}
	}
	return nil, tollgate.ErrListingNotFound
}

func (s *Store) ListDetails(_ context.Context, owner types.Principal) ([]*subscription.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Detail, 0, len(s.listings[owner]))
	for _, l := range s.listings[owner] {
		t, ok := s.terms[refKey(owner, l.VaultID)]
		if !ok {
			continue
		}
		result = append(result, &subscription.Detail{
			VaultID:     l.VaultID,
			ImageURL:    l.ImageURL,
			Price:       t.Price,
			Duration:    t.Duration,
			CoOwner:     t.CoOwner,
			SplitFeeBps: t.SplitFeeBps,
		})
	}
	return result, nil
}

func (s *Store) CountListings(_ context.Context, owner types.Principal) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.listings[owner]), nil
}

// Grant Store implementation

func (s *Store) CreateGrant(_ context.Context, g *entitlement.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[g.ID] = g
	s.byHolder[g.Holder] = append(s.byHolder[g.Holder], g.ID)
	return nil
}

func (s *Store) GetGrant(_ context.Context, grantID uint64) (*entitlement.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if g, ok := s.grants[grantID]; ok {
		return g, nil
	}
	return nil, tollgate.ErrGrantNotFound
}

func (s *Store) GrantsByHolder(_ context.Context, holder types.Principal) ([]*entitlement.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byHolder[holder]
	result := make([]*entitlement.Grant, 0, len(ids))
	for _, gid := range ids {
		if g, ok := s.grants[gid]; ok {
			result = append(result, g)
		}
	}
	return result, nil
}

func (s *Store) UpdateGrantHolder(_ context.Context, grantID uint64, holder types.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[grantID]
	if !ok {
		return tollgate.ErrGrantNotFound
	}

	ids := s.byHolder[g.Holder]
	for i, gid := range ids {
		if gid == grantID {
			ids[i] = ids[len(ids)-1]
			s.byHolder[g.Holder] = ids[:len(ids)-1]
			break
		}
	}

	g.Holder = holder
	g.Touch()
	s.byHolder[holder] = append(s.byHolder[holder], grantID)
	return nil
}

func (s *Store) MaxGrantID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxID uint64
	for gid := range s.grants {
		if gid > maxID {
			maxID = gid
		}
	}
	return maxID, nil
}

func (s *Store) GrantsExpiredBetween(_ context.Context, from, to time.Time) ([]*entitlement.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*entitlement.Grant, 0)
	for _, g := range s.grants {
		if g.ExpiresAt.After(from) && !g.ExpiresAt.After(to) {
			result = append(result, g)
		}
	}
	return result, nil
}

// Deal Store implementation

func (s *Store) CreateDeal(_ context.Context, d *entitlement.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deals[d.GrantID] = d
	return nil
}

func (s *Store) GetDeal(_ context.Context, grantID uint64) (*entitlement.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.deals[grantID]; ok {
		return d, nil
	}
	return nil, tollgate.ErrDealNotFound
}

// Balance Store implementation

func (s *Store) Balance(_ context.Context, account types.Principal, currency string) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.Money{Amount: s.balances[account], Currency: currency}, nil
}

func (s *Store) AdjustBalance(_ context.Context, account types.Principal, delta types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.balances[account] + delta.Amount
	if next < 0 {
		return tollgate.ErrInsufficientBalance
	}
	s.balances[account] = next
	return nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
