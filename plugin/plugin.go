// Package plugin provides an extensible plugin system for the ledger.
// Plugins can hook into account and transfer lifecycle events to extend
// functionality. Hooks run after the underlying write has committed; their
// errors are logged and never change the outcome of the operation.
package plugin

import (
	"context"

	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// TransferAttempt describes a transfer request as it was received.
type TransferAttempt struct {
	Actor  string       `json:"actor"`
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount types.Amount `json:"amount"`
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called after an account is registered.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, a *account.Account) error
}

// OnAccountRenamed is called after a display name changes.
type OnAccountRenamed interface {
	Plugin
	OnAccountRenamed(ctx context.Context, identity, oldName, newName string) error
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferCompleted is called after a transfer commits.
type OnTransferCompleted interface {
	Plugin
	OnTransferCompleted(ctx context.Context, t *transaction.Transaction) error
}

// OnTransferFailed is called when a transfer is rejected or aborted with
// no effect.
type OnTransferFailed interface {
	Plugin
	OnTransferFailed(ctx context.Context, attempt TransferAttempt, err error) error
}

// OnFatalInconsistency is the alerting path: it is called when compensation
// of a failed transfer itself failed and an operator must intervene.
type OnFatalInconsistency interface {
	Plugin
	OnFatalInconsistency(ctx context.Context, attempt TransferAttempt, err error) error
}
