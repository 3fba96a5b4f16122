package entitlement

import (
	"context"
	"time"

	"github.com/xraph/tollgate/types"
)

type Store interface {
	Create(ctx context.Context, g *Grant) error
	Get(ctx context.Context, grantID uint64) (*Grant, error)
	GetByHolder(ctx context.Context, holder types.Principal) ([]*Grant, error)
	UpdateHolder(ctx context.Context, grantID uint64, holder types.Principal) error
	MaxID(ctx context.Context) (uint64, error)
	ExpiredBetween(ctx context.Context, from, to time.Time) ([]*Grant, error)
	CreateDeal(ctx context.Context, d *Deal) error
	GetDeal(ctx context.Context, grantID uint64) (*Deal, error)
}
