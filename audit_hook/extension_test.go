package audithook_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/Kushagra2569/transaction-service"
	audithook "github.com/Kushagra2569/transaction-service/audit_hook"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/plugin"
	"github.com/Kushagra2569/transaction-service/store/memory"
	"github.com/Kushagra2569/transaction-service/types"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func (s *sink) last() *audithook.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newAuditedLedger(t *testing.T, ext *audithook.Extension) *ledger.Ledger {
	t.Helper()
	l := ledger.New(memory.New(), ledger.WithLogger(quiet()), ledger.WithPlugin(ext))
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestExtensionRecordsLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	s := &sink{}
	l := newAuditedLedger(t, audithook.New(s, audithook.WithLogger(quiet())))

	_, err := l.CreateAccount(ctx, "alice@example.com", "Alice", types.Amount(1000))
	require.NoError(t, err)
	_, err = l.CreateAccount(ctx, "bob@example.com", "Bob", types.Zero)
	require.NoError(t, err)

	txn, err := l.Transfer(ctx, "alice@example.com", "alice@example.com", "bob@example.com", types.Amount(250))
	require.NoError(t, err)

	last := s.last()
	assert.Equal(t, audithook.ActionTransferCompleted, last.Action)
	assert.Equal(t, audithook.ResourceTransaction, last.Resource)
	assert.Equal(t, txn.ID.String(), last.ResourceID)
	assert.Equal(t, "alice@example.com", last.Actor)
	assert.Equal(t, audithook.OutcomeSuccess, last.Outcome)
	assert.Equal(t, "2.50", last.Metadata["amount"])
	assert.NotEmpty(t, last.ID)
	assert.False(t, last.Timestamp.IsZero())

	_, err = l.Transfer(ctx, "alice@example.com", "alice@example.com", "bob@example.com", types.Amount(10_000))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	rejected := s.last()
	assert.Equal(t, audithook.ActionTransferRejected, rejected.Action)
	assert.Equal(t, audithook.OutcomeFailure, rejected.Outcome)
	assert.Equal(t, audithook.SeverityInfo, rejected.Severity)
	assert.Contains(t, rejected.Reason, "insufficient")

	require.NoError(t, l.RenameAccount(ctx, "bob@example.com", "Bob", "Robert"))
	renamed := s.last()
	assert.Equal(t, audithook.ActionAccountRenamed, renamed.Action)
	assert.Equal(t, "Robert", renamed.Metadata["new_name"])

	assert.Equal(t, []string{
		audithook.ActionAccountCreated,
		audithook.ActionAccountCreated,
		audithook.ActionTransferCompleted,
		audithook.ActionTransferRejected,
		audithook.ActionAccountRenamed,
	}, s.actions())
}

func TestExtensionFatalInconsistency(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)

	txnID := id.NewTransactionID()
	attempt := plugin.TransferAttempt{Actor: "alice@example.com", From: "alice@example.com", To: "bob@example.com", Amount: types.Amount(100)}
	err := &ledger.InconsistencyError{
		TransactionID:   txnID,
		From:            attempt.From,
		To:              attempt.To,
		Amount:          attempt.Amount,
		Step:            ledger.StepCredit,
		Cause:           errors.New("credit failed"),
		CompensationErr: errors.New("refund failed"),
	}

	require.NoError(t, ext.OnFatalInconsistency(context.Background(), attempt, err))

	evt := s.last()
	assert.Equal(t, audithook.ActionFatalInconsistency, evt.Action)
	assert.Equal(t, audithook.CategoryAlert, evt.Category)
	assert.Equal(t, audithook.SeverityCritical, evt.Severity)
	assert.Equal(t, audithook.OutcomePartial, evt.Outcome)
	assert.Equal(t, txnID.String(), evt.ResourceID)
	assert.Equal(t, "credit", evt.Metadata["step"])
}

func TestExtensionRetryableFailureIsWarning(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)

	err := errors.Join(ledger.ErrTransferFailed, errors.New("connection reset"))
	require.NoError(t, ext.OnTransferFailed(context.Background(), plugin.TransferAttempt{Actor: "a", From: "a", To: "b", Amount: 1}, err))

	assert.Equal(t, audithook.ActionTransferFailed, s.last().Action)
	assert.Equal(t, audithook.SeverityWarning, s.last().Severity)

	// A later step failing on a vanished account is a failure, not a rejection.
	err = fmt.Errorf("%w: credit: %w", ledger.ErrTransferFailed, ledger.ErrUnknownAccount)
	require.NoError(t, ext.OnTransferFailed(context.Background(), plugin.TransferAttempt{Actor: "a", From: "a", To: "b", Amount: 1}, err))

	assert.Equal(t, audithook.ActionTransferFailed, s.last().Action)
	assert.Equal(t, audithook.SeverityWarning, s.last().Severity)
}

func TestExtensionActionFilters(t *testing.T) {
	ctx := context.Background()
	attempt := plugin.TransferAttempt{Actor: "a", From: "a", To: "a", Amount: 1}

	t.Run("enabled", func(t *testing.T) {
		s := &sink{}
		ext := audithook.New(s, audithook.WithEnabledActions(audithook.ActionAccountRenamed))

		require.NoError(t, ext.OnTransferFailed(ctx, attempt, ledger.ErrSelfTransfer))
		require.NoError(t, ext.OnAccountRenamed(ctx, "a", "old", "new"))
		assert.Equal(t, []string{audithook.ActionAccountRenamed}, s.actions())
	})

	t.Run("disabled", func(t *testing.T) {
		s := &sink{}
		ext := audithook.New(s, audithook.WithDisabledActions(audithook.ActionTransferRejected))

		require.NoError(t, ext.OnTransferFailed(ctx, attempt, ledger.ErrSelfTransfer))
		require.NoError(t, ext.OnAccountRenamed(ctx, "a", "old", "new"))
		assert.Equal(t, []string{audithook.ActionAccountRenamed}, s.actions())
	})
}

func TestExtensionSwallowsRecorderErrors(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}), audithook.WithLogger(quiet()))

	err := ext.OnAccountRenamed(context.Background(), "a", "old", "new")
	assert.NoError(t, err)
}
