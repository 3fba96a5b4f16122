// Package observability provides a metrics extension for Tollgate that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/settlement"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnVaultRegistered     = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionUpdated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionDeleted = (*MetricsExtension)(nil)
	_ plugin.OnAccessGranted       = (*MetricsExtension)(nil)
	_ plugin.OnGrantTransferred    = (*MetricsExtension)(nil)
	_ plugin.OnGrantExpired        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tollgate plugin to automatically track engine metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Vault metrics
	VaultRegistered Counter

	// Subscription metrics
	SubscriptionCreated Counter
	SubscriptionUpdated Counter
	SubscriptionDeleted Counter

	// Grant metrics
	GrantsMinted      Counter
	GrantsTransferred Counter
	GrantsExpired     Counter

	// Settlement metrics
	SettledAmount  Histogram
	SettlementLegs Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Vault metrics
		VaultRegistered: factory.Counter("tollgate.vault.registered"),

		// Subscription metrics
		SubscriptionCreated: factory.Counter("tollgate.subscription.created"),
		SubscriptionUpdated: factory.Counter("tollgate.subscription.updated"),
		SubscriptionDeleted: factory.Counter("tollgate.subscription.deleted"),

		// Grant metrics
		GrantsMinted:      factory.Counter("tollgate.grant.minted"),
		GrantsTransferred: factory.Counter("tollgate.grant.transferred"),
		GrantsExpired:     factory.Counter("tollgate.grant.expired"),

		// Settlement metrics
		SettledAmount:  factory.Histogram("tollgate.settlement.amount_cents"),
		SettlementLegs: factory.Histogram("tollgate.settlement.legs"),

		// Error metrics
		StoreErrors:  factory.Counter("tollgate.store.errors"),
		PluginErrors: factory.Counter("tollgate.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Vault lifecycle hooks
// ──────────────────────────────────────────────────

// OnVaultRegistered implements plugin.OnVaultRegistered.
func (m *MetricsExtension) OnVaultRegistered(_ context.Context, _, _ string) error {
	m.VaultRegistered.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _, _ string, _ interface{}) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (m *MetricsExtension) OnSubscriptionUpdated(_ context.Context, _, _ string, _, _ interface{}) error {
	m.SubscriptionUpdated.Inc()
	return nil
}

// OnSubscriptionDeleted implements plugin.OnSubscriptionDeleted.
func (m *MetricsExtension) OnSubscriptionDeleted(_ context.Context, _, _ string) error {
	m.SubscriptionDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Grant lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccessGranted implements plugin.OnAccessGranted.
func (m *MetricsExtension) OnAccessGranted(_ context.Context, _ interface{}, receipt interface{}) error {
	m.GrantsMinted.Inc()
	if r, ok := receipt.(*settlement.Receipt); ok {
		m.SettledAmount.Observe(float64(r.Paid.Amount))
		m.SettlementLegs.Observe(float64(len(r.Legs)))
	}
	return nil
}

// OnGrantTransferred implements plugin.OnGrantTransferred.
func (m *MetricsExtension) OnGrantTransferred(_ context.Context, _ uint64, _, _ string) error {
	m.GrantsTransferred.Inc()
	return nil
}

// OnGrantExpired implements plugin.OnGrantExpired.
func (m *MetricsExtension) OnGrantExpired(_ context.Context, _ interface{}) error {
	m.GrantsExpired.Inc()
	return nil
}
