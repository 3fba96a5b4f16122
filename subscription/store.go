package subscription

import (
	"context"

	"github.com/xraph/tollgate/types"
)

type Store interface {
	SetSubscription(ctx context.Context, l *Listing, t *Terms) error
	DeleteSubscription(ctx context.Context, owner types.Principal, vaultID string) (bool, error)
	GetTerms(ctx context.Context, owner types.Principal, vaultID string) (*Terms, error)
	GetListing(ctx context.Context, owner types.Principal, vaultID string) (*Listing, error)
	ListDetails(ctx context.Context, owner types.Principal) ([]*Detail, error)
	CountListings(ctx context.Context, owner types.Principal) (int, error)
}
