package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Kushagra2569/transaction-service/plugin"
	"github.com/Kushagra2569/transaction-service/store"
)

// Defaults for engine configuration.
const (
	DefaultTransferTimeout = 5 * time.Second
	DefaultHistoryPageSize = 100
)

// Ledger is the transfer engine. It owns no state of its own beyond
// configuration; every balance and entry lives in the injected store.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Configuration
	transferTimeout time.Duration
	historyPageSize int
	now             func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		transferTimeout: DefaultTransferTimeout,
		historyPageSize: DefaultHistoryPageSize,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTransferTimeout bounds a single transfer, lock waits included.
func WithTransferTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.transferTimeout = d
		}
	}
}

// WithHistoryPageSize sets how many entries Transactions fetches per page.
func WithHistoryPageSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.historyPageSize = n
		}
	}
}

// WithClock replaces the time source used to stamp transactions.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("ledger started",
		"atomicity", l.store.Atomicity().String(),
		"transfer_timeout", l.transferTimeout,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())
	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store {
	return l.store
}

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry {
	return l.plugins
}

// Ping checks that the store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// stamp returns the creation time for the next transaction. Stamps never
// go backwards even if the wall clock does, and are truncated to the
// millisecond so every backend stores them identically.
func (l *Ledger) stamp() time.Time {
	l.stampMu.Lock()
	defer l.stampMu.Unlock()

	t := l.now().UTC().Truncate(time.Millisecond)
	if t.Before(l.lastStamp) {
		t = l.lastStamp
	}
	l.lastStamp = t
	return t
}
