package extension

import (
	"time"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/types"
)

// Option configures the Tollgate Forge extension.
type Option func(*Extension)

// WithStore sets the store for the gate engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGateOption passes a tollgate.Option through to the underlying engine.
func WithGateOption(opt tollgate.Option) Option {
	return func(e *Extension) {
		e.gateOpts = append(e.gateOpts, opt)
	}
}

// WithPlugin registers a tollgate plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.gateOpts = append(e.gateOpts, tollgate.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithPlatformFee sets the basis-point platform cut of every gross price.
func WithPlatformFee(bps int64) Option {
	return func(e *Extension) { e.config.PlatformFeeBps = bps }
}

// WithTreasury sets the account that receives the platform fee.
func WithTreasury(account types.Principal) Option {
	return func(e *Extension) { e.config.Treasury = string(account) }
}

// WithCurrency sets the currency all engine accounts are denominated in.
func WithCurrency(code string) Option {
	return func(e *Extension) { e.config.Currency = code }
}

// WithLockPeriod sets the post-mint transfer lock window.
func WithLockPeriod(d time.Duration) Option {
	return func(e *Extension) { e.config.LockPeriod = d }
}

// WithExpiryCheckInterval sets how often the expiry watcher runs.
func WithExpiryCheckInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ExpiryCheckInterval = d }
}
