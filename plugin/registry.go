package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onVaultRegistered     []OnVaultRegistered
	onSubscriptionCreated []OnSubscriptionCreated
	onSubscriptionUpdated []OnSubscriptionUpdated
	onSubscriptionDeleted []OnSubscriptionDeleted
	onAccessGranted       []OnAccessGranted
	onGrantTransferred    []OnGrantTransferred
	onGrantExpired        []OnGrantExpired
	bankProviders         []BankPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnVaultRegistered); ok {
		r.onVaultRegistered = append(r.onVaultRegistered, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionUpdated); ok {
		r.onSubscriptionUpdated = append(r.onSubscriptionUpdated, v)
	}
	if v, ok := p.(OnSubscriptionDeleted); ok {
		r.onSubscriptionDeleted = append(r.onSubscriptionDeleted, v)
	}
	if v, ok := p.(OnAccessGranted); ok {
		r.onAccessGranted = append(r.onAccessGranted, v)
	}
	if v, ok := p.(OnGrantTransferred); ok {
		r.onGrantTransferred = append(r.onGrantTransferred, v)
	}
	if v, ok := p.(OnGrantExpired); ok {
		r.onGrantExpired = append(r.onGrantExpired, v)
	}
	if v, ok := p.(BankPlugin); ok {
		r.bankProviders = append(r.bankProviders, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnVaultRegistered)(nil)).Elem(), "OnVaultRegistered")
	checkInterface(reflect.TypeOf((*OnSubscriptionCreated)(nil)).Elem(), "OnSubscriptionCreated")
	checkInterface(reflect.TypeOf((*OnSubscriptionUpdated)(nil)).Elem(), "OnSubscriptionUpdated")
	checkInterface(reflect.TypeOf((*OnSubscriptionDeleted)(nil)).Elem(), "OnSubscriptionDeleted")
	checkInterface(reflect.TypeOf((*OnAccessGranted)(nil)).Elem(), "OnAccessGranted")
	checkInterface(reflect.TypeOf((*OnGrantTransferred)(nil)).Elem(), "OnGrantTransferred")
	checkInterface(reflect.TypeOf((*OnGrantExpired)(nil)).Elem(), "OnGrantExpired")
	checkInterface(reflect.TypeOf((*BankPlugin)(nil)).Elem(), "BankPlugin")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, g interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, g)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitVaultRegistered emits a vault registered event.
func (r *Registry) EmitVaultRegistered(ctx context.Context, vaultID, owner string) {
	r.mu.RLock()
	plugins := r.onVaultRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnVaultRegistered(ctx, vaultID, owner)
		}); err != nil {
			r.logger.Warn("plugin OnVaultRegistered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, owner, vaultID string, terms interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCreated(ctx, owner, vaultID, terms)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionUpdated emits a subscription updated event.
func (r *Registry) EmitSubscriptionUpdated(ctx context.Context, owner, vaultID string, oldTerms, newTerms interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionUpdated(ctx, owner, vaultID, oldTerms, newTerms)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionDeleted emits a subscription deleted event.
func (r *Registry) EmitSubscriptionDeleted(ctx context.Context, owner, vaultID string) {
	r.mu.RLock()
	plugins := r.onSubscriptionDeleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionDeleted(ctx, owner, vaultID)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionDeleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccessGranted emits an access granted event.
func (r *Registry) EmitAccessGranted(ctx context.Context, grant interface{}, receipt interface{}) {
	r.mu.RLock()
	plugins := r.onAccessGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccessGranted(ctx, grant, receipt)
		}); err != nil {
			r.logger.Warn("plugin OnAccessGranted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitGrantTransferred emits a grant transferred event.
func (r *Registry) EmitGrantTransferred(ctx context.Context, grantID uint64, from, to string) {
	r.mu.RLock()
	plugins := r.onGrantTransferred
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnGrantTransferred(ctx, grantID, from, to)
		}); err != nil {
			r.logger.Warn("plugin OnGrantTransferred failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitGrantExpired emits a grant expired event.
func (r *Registry) EmitGrantExpired(ctx context.Context, grant interface{}) {
	r.mu.RLock()
	plugins := r.onGrantExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnGrantExpired(ctx, grant)
		}); err != nil {
			r.logger.Warn("plugin OnGrantExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetBankProviders returns all registered bank provider plugins.
func (r *Registry) GetBankProviders() []BankPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]BankPlugin, len(r.bankProviders))
	copy(result, r.bankProviders)
	return result
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
