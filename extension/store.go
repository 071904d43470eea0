package extension

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/store/memory"
	"github.com/Kushagra2569/transaction-service/store/mongo"
	"github.com/Kushagra2569/transaction-service/store/postgres"
	"github.com/Kushagra2569/transaction-service/store/sqlite"
)

// OpenStore constructs the backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("ledger: driver %q requires a dsn", cfg.Driver)
		}
		return postgres.Open(ctx, cfg.DSN, postgres.WithLogger(logger))
	case DriverSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("ledger: driver %q requires a dsn", cfg.Driver)
		}
		return sqlite.Open(ctx, cfg.DSN, sqlite.WithLogger(logger))
	case DriverMongo:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("ledger: driver %q requires a dsn", cfg.Driver)
		}
		database := cfg.Database
		if database == "" {
			database = DefaultConfig().Database
		}
		return mongo.Open(ctx, cfg.DSN, database, mongo.WithLogger(logger))
	default:
		return nil, fmt.Errorf("ledger: unknown store driver %q", cfg.Driver)
	}
}
