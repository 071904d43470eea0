package extension

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kushagra2569/transaction-service/store/memory"
	"github.com/Kushagra2569/transaction-service/store/sqlite"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{HistoryPageSize: 10})

	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, "ledger", cfg.Database)
	assert.Equal(t, 5*time.Second, cfg.TransferTimeout)
	assert.Equal(t, 10, cfg.HistoryPageSize)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{Driver: DriverSQLite, DSN: "/var/lib/ledger.db", TransferTimeout: time.Second}
	programmatic := Config{
		DisableMigrate:  true,
		Driver:          DriverPostgres,
		DSN:             "postgres://localhost/ledger",
		HistoryPageSize: 25,
	}

	cfg := mergeConfigurations(yaml, programmatic)

	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "/var/lib/ledger.db", cfg.DSN)
	assert.Equal(t, time.Second, cfg.TransferTimeout)
	assert.Equal(t, 25, cfg.HistoryPageSize)
}

func TestMergeConfigurationsTakesDriverAndDSNTogether(t *testing.T) {
	cfg := mergeConfigurations(Config{}, Config{Driver: DriverMongo, DSN: "mongodb://localhost"})

	assert.Equal(t, DriverMongo, cfg.Driver)
	assert.Equal(t, "mongodb://localhost", cfg.DSN)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := OpenStore(ctx, DefaultConfig(), nil)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Driver = DriverSQLite
		cfg.DSN = filepath.Join(t.TempDir(), "ledger.db")

		s, err := OpenStore(ctx, cfg, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &sqlite.Store{}, s)
		require.NoError(t, s.Migrate(ctx))
	})

	t.Run("missing dsn", func(t *testing.T) {
		_, err := OpenStore(ctx, Config{Driver: DriverPostgres}, nil)
		assert.ErrorContains(t, err, "requires a dsn")
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := OpenStore(ctx, Config{Driver: "cassandra"}, nil)
		assert.ErrorContains(t, err, "unknown store driver")
	})
}

func TestBuildLedgerOpts(t *testing.T) {
	e := New(WithTransferTimeout(time.Second), WithHistoryPageSize(5), WithStore(memory.New()))
	e.config = mergeWithDefaults(e.config)

	assert.Len(t, e.buildLedgerOpts(), 2)
}
