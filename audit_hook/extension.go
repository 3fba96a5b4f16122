// Package audithook bridges Tollgate lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/settlement"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnVaultRegistered     = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated = (*Extension)(nil)
	_ plugin.OnSubscriptionUpdated = (*Extension)(nil)
	_ plugin.OnSubscriptionDeleted = (*Extension)(nil)
	_ plugin.OnAccessGranted       = (*Extension)(nil)
	_ plugin.OnGrantTransferred    = (*Extension)(nil)
	_ plugin.OnGrantExpired        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	ID         id.EventID     `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tollgate lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Vault lifecycle hooks
// ──────────────────────────────────────────────────

// OnVaultRegistered implements plugin.OnVaultRegistered.
func (e *Extension) OnVaultRegistered(ctx context.Context, vaultID, owner string) error {
	return e.record(ctx, ActionVaultRegistered, SeverityInfo, OutcomeSuccess,
		ResourceVault, vaultID, CategoryRegistry, nil,
		"vault_id", vaultID,
		"owner", owner,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, owner, vaultID string, _ interface{}) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, vaultID, CategoryCatalog, nil,
		"owner", owner,
		"vault_id", vaultID,
	)
}

// OnSubscriptionUpdated implements plugin.OnSubscriptionUpdated.
func (e *Extension) OnSubscriptionUpdated(ctx context.Context, owner, vaultID string, _, _ interface{}) error {
	return e.record(ctx, ActionSubscriptionUpdated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, vaultID, CategoryCatalog, nil,
		"owner", owner,
		"vault_id", vaultID,
	)
}

// OnSubscriptionDeleted implements plugin.OnSubscriptionDeleted.
func (e *Extension) OnSubscriptionDeleted(ctx context.Context, owner, vaultID string) error {
	return e.record(ctx, ActionSubscriptionDeleted, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, vaultID, CategoryCatalog, nil,
		"owner", owner,
		"vault_id", vaultID,
	)
}

// ──────────────────────────────────────────────────
// Grant lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccessGranted implements plugin.OnAccessGranted.
func (e *Extension) OnAccessGranted(ctx context.Context, grant interface{}, receipt interface{}) error {
	kv := []any{"event", "access_granted"}
	resourceID := ""
	if g, ok := grant.(*entitlement.Grant); ok {
		resourceID = strconv.FormatUint(g.ID, 10)
		kv = append(kv,
			"grant_id", g.ID,
			"holder", string(g.Holder),
			"owner", string(g.Ref.Owner),
			"vault_id", g.Ref.VaultID,
			"expires_at", g.ExpiresAt,
		)
	}
	if r, ok := receipt.(*settlement.Receipt); ok {
		kv = append(kv,
			"receipt_id", r.ID.String(),
			"paid", r.Paid.String(),
			"legs", len(r.Legs),
		)
	}
	return e.record(ctx, ActionAccessGranted, SeverityInfo, OutcomeSuccess,
		ResourceGrant, resourceID, CategoryPayment, nil, kv...)
}

// OnGrantTransferred implements plugin.OnGrantTransferred.
func (e *Extension) OnGrantTransferred(ctx context.Context, grantID uint64, from, to string) error {
	return e.record(ctx, ActionGrantTransferred, SeverityInfo, OutcomeSuccess,
		ResourceGrant, strconv.FormatUint(grantID, 10), CategoryAccess, nil,
		"grant_id", grantID,
		"from", from,
		"to", to,
	)
}

// OnGrantExpired implements plugin.OnGrantExpired.
func (e *Extension) OnGrantExpired(ctx context.Context, grant interface{}) error {
	kv := []any{"event", "grant_expired"}
	resourceID := ""
	if g, ok := grant.(*entitlement.Grant); ok {
		resourceID = strconv.FormatUint(g.ID, 10)
		kv = append(kv,
			"grant_id", g.ID,
			"holder", string(g.Holder),
			"vault_id", g.Ref.VaultID,
			"expired_at", g.ExpiresAt,
		)
	}
	return e.record(ctx, ActionGrantExpired, SeverityInfo, OutcomeSuccess,
		ResourceGrant, resourceID, CategoryAccess, nil, kv...)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewEventID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
