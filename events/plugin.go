package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/plugin"
	"github.com/Kushagra2569/transaction-service/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Plugin)(nil)
	_ plugin.OnAccountCreated     = (*Plugin)(nil)
	_ plugin.OnTransferCompleted  = (*Plugin)(nil)
	_ plugin.OnFatalInconsistency = (*Plugin)(nil)
	_ plugin.OnShutdown           = (*Plugin)(nil)
)

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// Plugin publishes ledger hooks as events. Publishing runs behind a circuit
// breaker so an unavailable broker fails fast instead of stalling every
// hook until its timeout.
type Plugin struct {
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// PluginOption configures a Plugin.
type PluginOption func(*pluginConfig)

type pluginConfig struct {
	logger      *slog.Logger
	maxFailures uint32
	openTimeout time.Duration
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PluginOption {
	return func(c *pluginConfig) { c.logger = logger }
}

// WithBreaker sets how many consecutive failures open the breaker and how
// long it stays open.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) PluginOption {
	return func(c *pluginConfig) {
		c.maxFailures = maxFailures
		c.openTimeout = openTimeout
	}
}

// NewPlugin creates a Plugin publishing through p.
func NewPlugin(p Publisher, opts ...PluginOption) *Plugin {
	cfg := pluginConfig{
		logger:      slog.Default(),
		maxFailures: 5,
		openTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "events-publisher",
		MaxRequests: 1,
		Timeout:     cfg.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Plugin{publisher: p, breaker: breaker, logger: logger}
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "events-publisher" }

// OnAccountCreated implements plugin.OnAccountCreated.
func (p *Plugin) OnAccountCreated(ctx context.Context, a *account.Account) error {
	return p.publish(ctx, TypeAccountCreated, a.CreatedAt, AccountCreated{
		Identity:       a.Identity,
		DisplayName:    a.DisplayName,
		OpeningBalance: a.OpeningBalance,
	})
}

// OnTransferCompleted implements plugin.OnTransferCompleted.
func (p *Plugin) OnTransferCompleted(ctx context.Context, t *transaction.Transaction) error {
	return p.publish(ctx, TypeTransactionCreated, t.CreatedAt, TransactionCreated{
		TransactionID: t.ID.String(),
		From:          t.From,
		To:            t.To,
		Amount:        t.Amount,
		CreatedAt:     t.CreatedAt,
	})
}

// OnFatalInconsistency implements plugin.OnFatalInconsistency.
func (p *Plugin) OnFatalInconsistency(ctx context.Context, a plugin.TransferAttempt, err error) error {
	data := FatalInconsistency{
		Actor:  a.Actor,
		From:   a.From,
		To:     a.To,
		Amount: a.Amount,
		Error:  err.Error(),
	}
	var inc *ledger.InconsistencyError
	if errors.As(err, &inc) {
		data.TransactionID = inc.TransactionID.String()
		data.Step = string(inc.Step)
	}
	return p.publish(ctx, TypeFatalInconsistency, time.Now(), data)
}

// OnShutdown implements plugin.OnShutdown.
func (p *Plugin) OnShutdown(_ context.Context) error {
	return p.publisher.Close()
}

// State reports the breaker state.
func (p *Plugin) State() gobreaker.State {
	return p.breaker.State()
}

func (p *Plugin) publish(ctx context.Context, eventType string, at time.Time, data any) error {
	evt, err := New(eventType, at, data)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(ctx, evt)
	})
	if err != nil {
		return fmt.Errorf("events: publish %s %s: %w", evt.Type, evt.ID, err)
	}

	p.logger.Debug("event published", "type", evt.Type, "id", evt.ID)
	return nil
}
