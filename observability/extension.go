// Package observability provides a metrics extension for Ledger that records
// account and transfer lifecycle counts via a MetricFactory.
package observability

import (
	"context"
	"errors"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/plugin"
	"github.com/Kushagra2569/transaction-service/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated     = (*MetricsExtension)(nil)
	_ plugin.OnAccountRenamed     = (*MetricsExtension)(nil)
	_ plugin.OnTransferCompleted  = (*MetricsExtension)(nil)
	_ plugin.OnTransferFailed     = (*MetricsExtension)(nil)
	_ plugin.OnFatalInconsistency = (*MetricsExtension)(nil)
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
// Register it as a Ledger plugin to automatically track transfer metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter
	AccountRenamed Counter

	// Transfer metrics
	TransferCompleted Counter
	TransferAmount    Histogram

	// Failure metrics, one counter per reason
	TransferRejected     Counter
	TransferInsufficient Counter
	TransferUnknown      Counter
	TransferFailed       Counter
	FatalInconsistency   Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AccountCreated: factory.Counter("ledger.account.created"),
		AccountRenamed: factory.Counter("ledger.account.renamed"),

		TransferCompleted: factory.Counter("ledger.transfer.completed"),
		TransferAmount:    factory.Histogram("ledger.transfer.amount"),

		TransferRejected:     factory.Counter("ledger.transfer.rejected"),
		TransferInsufficient: factory.Counter("ledger.transfer.insufficient_funds"),
		TransferUnknown:      factory.Counter("ledger.transfer.unknown_account"),
		TransferFailed:       factory.Counter("ledger.transfer.failed"),
		FatalInconsistency:   factory.Counter("ledger.transfer.fatal_inconsistency"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *account.Account) error {
	m.AccountCreated.Inc()
	return nil
}

// OnAccountRenamed implements plugin.OnAccountRenamed.
func (m *MetricsExtension) OnAccountRenamed(_ context.Context, _, _, _ string) error {
	m.AccountRenamed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Transfer lifecycle hooks
// ──────────────────────────────────────────────────

// OnTransferCompleted implements plugin.OnTransferCompleted.
func (m *MetricsExtension) OnTransferCompleted(_ context.Context, t *transaction.Transaction) error {
	m.TransferCompleted.Inc()
	amount, _ := t.Amount.Decimal().Float64()
	m.TransferAmount.Observe(amount)
	return nil
}

// OnTransferFailed implements plugin.OnTransferFailed.
func (m *MetricsExtension) OnTransferFailed(_ context.Context, _ plugin.TransferAttempt, err error) error {
	switch {
	case !ledger.IsValidation(err):
		m.TransferFailed.Inc()
	case errors.Is(err, ledger.ErrInsufficientFunds):
		m.TransferInsufficient.Inc()
	case errors.Is(err, ledger.ErrUnknownAccount):
		m.TransferUnknown.Inc()
	default:
		m.TransferRejected.Inc()
	}
	return nil
}

// OnFatalInconsistency implements plugin.OnFatalInconsistency.
func (m *MetricsExtension) OnFatalInconsistency(_ context.Context, _ plugin.TransferAttempt, _ error) error {
	m.FatalInconsistency.Inc()
	return nil
}
