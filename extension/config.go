package extension

import (
	"time"

	tollgate "github.com/xraph/tollgate"
)

// Config holds the Tollgate extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tollgate" or "tollgate" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// PlatformFeeBps is the basis-point cut of every gross price routed to
	// the platform treasury (default: 0, platform leg disabled).
	PlatformFeeBps int64 `json:"platform_fee_bps" mapstructure:"platform_fee_bps" yaml:"platform_fee_bps"`

	// Treasury is the account that receives the platform fee. Required
	// whenever PlatformFeeBps is non-zero.
	Treasury string `json:"treasury" mapstructure:"treasury" yaml:"treasury"`

	// Currency denominates all engine accounts (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// LockPeriod is the post-mint window during which grants cannot change
	// holder (default: 24h).
	LockPeriod time.Duration `json:"lock_period" mapstructure:"lock_period" yaml:"lock_period"`

	// ExpiryCheckInterval is how often the expiry watcher scans for grants
	// that crossed their expiration (default: 1m).
	ExpiryCheckInterval time.Duration `json:"expiry_check_interval" mapstructure:"expiry_check_interval" yaml:"expiry_check_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:            tollgate.DefaultCurrency,
		LockPeriod:          tollgate.DefaultLockPeriod,
		ExpiryCheckInterval: tollgate.DefaultExpiryCheckInterval,
	}
}
