// Package plugin provides an extensible plugin system for Tollgate.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, g interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Vault lifecycle hooks
// ──────────────────────────────────────────────────

// OnVaultRegistered is called when a vault is bound to its owner.
type OnVaultRegistered interface {
	Plugin
	OnVaultRegistered(ctx context.Context, vaultID, owner string) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when an owner lists a vault for the
// first time.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, owner, vaultID string, terms interface{}) error
}

// OnSubscriptionUpdated is called when an existing listing's terms are
// replaced.
type OnSubscriptionUpdated interface {
	Plugin
	OnSubscriptionUpdated(ctx context.Context, owner, vaultID string, oldTerms, newTerms interface{}) error
}

// OnSubscriptionDeleted is called when a listing is withdrawn.
type OnSubscriptionDeleted interface {
	Plugin
	OnSubscriptionDeleted(ctx context.Context, owner, vaultID string) error
}

// ──────────────────────────────────────────────────
// Grant lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccessGranted is called when a purchase settles and a grant is minted.
type OnAccessGranted interface {
	Plugin
	OnAccessGranted(ctx context.Context, grant interface{}, receipt interface{}) error
}

// OnGrantTransferred is called when a grant changes holder.
type OnGrantTransferred interface {
	Plugin
	OnGrantTransferred(ctx context.Context, grantID uint64, from, to string) error
}

// OnGrantExpired is called when the expiry watcher observes a grant
// crossing its expiration time. Expired grants are kept, not deleted.
type OnGrantExpired interface {
	Plugin
	OnGrantExpired(ctx context.Context, grant interface{}) error
}

// ──────────────────────────────────────────────────
// Bank providers
// ──────────────────────────────────────────────────

// BankPlugin provides a settlement bank implementation.
type BankPlugin interface {
	Plugin
	Bank() interface{} // Returns settlement.Bank
}
