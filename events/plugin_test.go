package events_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/events"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/plugin"
	"github.com/Kushagra2569/transaction-service/store/memory"
	"github.com/Kushagra2569/transaction-service/types"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.Event
	fail   error
	calls  int
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestPluginPublishesLedgerEvents(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	p := events.NewPlugin(pub, events.WithLogger(quiet()))

	l := ledger.New(memory.New(), ledger.WithLogger(quiet()), ledger.WithPlugin(p))
	require.NoError(t, l.Start(ctx))

	_, err := l.CreateAccount(ctx, "alice@example.com", "Alice", types.Amount(10_000))
	require.NoError(t, err)
	_, err = l.CreateAccount(ctx, "bob@example.com", "Bob", types.Zero)
	require.NoError(t, err)
	txn, err := l.Transfer(ctx, "alice@example.com", "alice@example.com", "bob@example.com", types.Amount(4000))
	require.NoError(t, err)

	_, err = l.Transfer(ctx, "alice@example.com", "alice@example.com", "bob@example.com", types.Amount(1_000_000))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, []string{
		events.TypeAccountCreated,
		events.TypeAccountCreated,
		events.TypeTransactionCreated,
	}, pub.types())

	last := pub.events[2]
	var data events.TransactionCreated
	require.NoError(t, last.Unmarshal(&data))
	assert.Equal(t, txn.ID.String(), data.TransactionID)
	assert.Equal(t, types.Amount(4000), data.Amount)
	assert.True(t, txn.CreatedAt.Equal(last.OccurredAt))

	require.NoError(t, l.Stop())
	assert.True(t, pub.closed)
}

func TestPluginFatalInconsistencyEvent(t *testing.T) {
	pub := &fakePublisher{}
	p := events.NewPlugin(pub, events.WithLogger(quiet()))

	txnID := id.NewTransactionID()
	attempt := plugin.TransferAttempt{Actor: "alice@example.com", From: "alice@example.com", To: "bob@example.com", Amount: 100}
	err := p.OnFatalInconsistency(context.Background(), attempt, &ledger.InconsistencyError{
		TransactionID:   txnID,
		Step:            ledger.StepAppend,
		Cause:           errors.New("disk full"),
		CompensationErr: errors.New("connection lost"),
	})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeFatalInconsistency, pub.events[0].Type)

	var data events.FatalInconsistency
	require.NoError(t, pub.events[0].Unmarshal(&data))
	assert.Equal(t, txnID.String(), data.TransactionID)
	assert.Equal(t, "append", data.Step)
	assert.Contains(t, data.Error, "disk full")
}

func TestPluginBreakerOpensAfterFailures(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("broker down")}
	p := events.NewPlugin(pub, events.WithLogger(quiet()), events.WithBreaker(2, time.Minute))
	a := &account.Account{Identity: "alice@example.com"}

	for range 2 {
		assert.Error(t, p.OnAccountCreated(context.Background(), a))
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.OnAccountCreated(context.Background(), a)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, pub.calls)
}

func TestDecodeRejectsIncompleteEnvelope(t *testing.T) {
	_, err := events.Decode([]byte(`{"type":"account.created"}`))
	assert.Error(t, err)

	_, err = events.Decode([]byte(`not json`))
	assert.Error(t, err)
}
