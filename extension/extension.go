// Package extension provides the Forge extension adapter for Tollgate.
//
// It implements the forge.Extension interface to integrate Tollgate
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tollgate" or "tollgate" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/store/memory"
	"github.com/xraph/tollgate/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tollgate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Entitlement and settlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tollgate as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config   Config
	engine   *tollgate.Gate
	store    store.Store
	gateOpts []tollgate.Option
}

// New creates a new Tollgate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Gate instance.
// This is nil until Register is called.
func (e *Extension) Engine() *tollgate.Gate { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the gate engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build gate options from resolved config.
	opts := e.buildGateOpts()

	eng := tollgate.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*tollgate.Gate, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tollgate: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tollgate: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildGateOpts constructs tollgate.Option values from the resolved config.
func (e *Extension) buildGateOpts() []tollgate.Option {
	opts := make([]tollgate.Option, 0, len(e.gateOpts)+5)

	// Apply config-derived options.
	if e.config.PlatformFeeBps > 0 {
		opts = append(opts, tollgate.WithPlatformFee(e.config.PlatformFeeBps))
	}
	if e.config.Treasury != "" {
		opts = append(opts, tollgate.WithTreasury(types.Principal(e.config.Treasury)))
	}
	if e.config.Currency != "" {
		opts = append(opts, tollgate.WithCurrency(e.config.Currency))
	}
	if e.config.LockPeriod > 0 {
		opts = append(opts, tollgate.WithLockPeriod(e.config.LockPeriod))
	}
	if e.config.ExpiryCheckInterval > 0 {
		opts = append(opts, tollgate.WithExpiryCheckInterval(e.config.ExpiryCheckInterval))
	}

	// Append any pass-through gate options.
	opts = append(opts, e.gateOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tollgate: configuration is required but not found in config files; " +
				"ensure 'extensions.tollgate' or 'tollgate' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tollgate: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("platform_fee_bps", e.config.PlatformFeeBps),
		forge.F("treasury", e.config.Treasury),
		forge.F("currency", e.config.Currency),
		forge.F("lock_period", e.config.LockPeriod),
		forge.F("expiry_check_interval", e.config.ExpiryCheckInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.tollgate" first (namespaced pattern).
	if cm.IsSet("extensions.tollgate") {
		if err := cm.Bind("extensions.tollgate", &cfg); err == nil {
			e.Logger().Debug("tollgate: loaded config from file",
				forge.F("key", "extensions.tollgate"),
			)
			return cfg, true
		}
		e.Logger().Warn("tollgate: failed to bind extensions.tollgate config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "tollgate" key.
	if cm.IsSet("tollgate") {
		if err := cm.Bind("tollgate", &cfg); err == nil {
			e.Logger().Debug("tollgate: loaded config from file",
				forge.F("key", "tollgate"),
			)
			return cfg, true
		}
		e.Logger().Warn("tollgate: failed to bind tollgate config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.LockPeriod == 0 {
		cfg.LockPeriod = defaults.LockPeriod
	}
	if cfg.ExpiryCheckInterval == 0 {
		cfg.ExpiryCheckInterval = defaults.ExpiryCheckInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Treasury == "" && programmaticConfig.Treasury != "" {
		yamlConfig.Treasury = programmaticConfig.Treasury
	}
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PlatformFeeBps == 0 && programmaticConfig.PlatformFeeBps != 0 {
		yamlConfig.PlatformFeeBps = programmaticConfig.PlatformFeeBps
	}
	if yamlConfig.LockPeriod == 0 && programmaticConfig.LockPeriod != 0 {
		yamlConfig.LockPeriod = programmaticConfig.LockPeriod
	}
	if yamlConfig.ExpiryCheckInterval == 0 && programmaticConfig.ExpiryCheckInterval != 0 {
		yamlConfig.ExpiryCheckInterval = programmaticConfig.ExpiryCheckInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
