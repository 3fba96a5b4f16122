package vault

import (
	"context"
)

type Store interface {
	Create(ctx context.Context, v *Vault) error
	Get(ctx context.Context, vaultID string) (*Vault, error)
}
