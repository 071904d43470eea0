// Package audithook bridges Ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular storage. Callers inject a Recorder (for example
// mongoaudit.Recorder) or a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/plugin"
	"github.com/Kushagra2569/transaction-service/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnAccountCreated     = (*Extension)(nil)
	_ plugin.OnAccountRenamed     = (*Extension)(nil)
	_ plugin.OnTransferCompleted  = (*Extension)(nil)
	_ plugin.OnTransferFailed     = (*Extension)(nil)
	_ plugin.OnFatalInconsistency = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	ID         string         `json:"id"          bson:"_id"`
	Timestamp  time.Time      `json:"timestamp"   bson:"timestamp"`
	Action     string         `json:"action"      bson:"action"`
	Resource   string         `json:"resource"    bson:"resource"`
	Category   string         `json:"category"    bson:"category"`
	ResourceID string         `json:"resource_id,omitempty" bson:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"       bson:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"    bson:"metadata,omitempty"`
	Outcome    string         `json:"outcome"     bson:"outcome"`
	Severity   string         `json:"severity"    bson:"severity"`
	Reason     string         `json:"reason,omitempty" bson:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.Identity, a.Identity, CategoryAccount, nil,
		"opening_balance", a.OpeningBalance.String(),
	)
}

// OnAccountRenamed implements plugin.OnAccountRenamed.
func (e *Extension) OnAccountRenamed(ctx context.Context, identity, oldName, newName string) error {
	return e.record(ctx, ActionAccountRenamed, SeverityInfo, OutcomeSuccess,
		ResourceAccount, identity, identity, CategoryAccount, nil,
		"old_name", oldName,
		"new_name", newName,
	)
}

// ──────────────────────────────────────────────────
// Transfer lifecycle hooks
// ──────────────────────────────────────────────────

// OnTransferCompleted implements plugin.OnTransferCompleted.
func (e *Extension) OnTransferCompleted(ctx context.Context, t *transaction.Transaction) error {
	return e.record(ctx, ActionTransferCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, t.ID.String(), t.From, CategoryTransfer, nil,
		"from", t.From,
		"to", t.To,
		"amount", t.Amount.String(),
	)
}

// OnTransferFailed implements plugin.OnTransferFailed. Caller mistakes are
// recorded as rejections; everything else is a warning.
func (e *Extension) OnTransferFailed(ctx context.Context, a plugin.TransferAttempt, err error) error {
	action, severity := ActionTransferFailed, SeverityWarning
	if ledger.IsValidation(err) {
		action, severity = ActionTransferRejected, SeverityInfo
	}
	return e.record(ctx, action, severity, OutcomeFailure,
		ResourceTransaction, "", a.Actor, CategoryTransfer, err,
		"from", a.From,
		"to", a.To,
		"amount", a.Amount.String(),
	)
}

// OnFatalInconsistency implements plugin.OnFatalInconsistency.
func (e *Extension) OnFatalInconsistency(ctx context.Context, a plugin.TransferAttempt, err error) error {
	kv := []any{
		"from", a.From,
		"to", a.To,
		"amount", a.Amount.String(),
	}
	var resourceID string
	var inc *ledger.InconsistencyError
	if errors.As(err, &inc) {
		resourceID = inc.TransactionID.String()
		kv = append(kv, "step", string(inc.Step))
	}
	return e.record(ctx, ActionFatalInconsistency, SeverityCritical, OutcomePartial,
		ResourceTransaction, resourceID, a.Actor, CategoryAlert, err,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, actor, category string,
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
		ID:         id.NewAuditID().String(),
		Timestamp:  e.now().UTC(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor,
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
