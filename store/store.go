package store

import (
	"context"
	"time"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/types"
	"github.com/xraph/tollgate/vault"
)

// Store is the unified storage interface for all Tollgate entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Vault methods
	CreateVault(ctx context.Context, v *vault.Vault) error
	GetVault(ctx context.Context, vaultID string) (*vault.Vault, error)

	// Subscription methods. SetSubscription upserts the listing and its
	// terms together; DeleteSubscription removes both and reports whether
	// anything was there to remove.
	SetSubscription(ctx context.Context, l *subscription.Listing, t *subscription.Terms) error
	DeleteSubscription(ctx context.Context, owner types.Principal, vaultID string) (bool, error)
	GetTerms(ctx context.Context, owner types.Principal, vaultID string) (*subscription.Terms, error)
	GetListing(ctx context.Context, owner types.Principal, vaultID string) (*subscription.Listing, error)
	ListDetails(ctx context.Context, owner types.Principal) ([]*subscription.Detail, error)
	CountListings(ctx context.Context, owner types.Principal) (int, error)

	// Grant methods
	CreateGrant(ctx context.Context, g *entitlement.Grant) error
	GetGrant(ctx context.Context, grantID uint64) (*entitlement.Grant, error)
	GrantsByHolder(ctx context.Context, holder types.Principal) ([]*entitlement.Grant, error)
	UpdateGrantHolder(ctx context.Context, grantID uint64, holder types.Principal) error
	MaxGrantID(ctx context.Context) (uint64, error)
	GrantsExpiredBetween(ctx context.Context, from, to time.Time) ([]*entitlement.Grant, error)

	// Deal methods
	CreateDeal(ctx context.Context, d *entitlement.Deal) error
	GetDeal(ctx context.Context, grantID uint64) (*entitlement.Deal, error)

	// Balance methods. Balance reports zero for accounts never seen;
	// AdjustBalance fails when a debit would take an account negative.
	Balance(ctx context.Context, account types.Principal, currency string) (types.Money, error)
	AdjustBalance(ctx context.Context, account types.Principal, delta types.Money) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
