package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"LEDGER_ADDR", "LEDGER_STORE", "JWT_TTL", "TRANSFER_TIMEOUT", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3042", cfg.Addr)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "", cfg.StoreDSN())
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 5*time.Second, cfg.TransferTimeout)
	assert.Equal(t, 100, cfg.HistoryPageSize)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_ADDR", "0.0.0.0:8080")
	t.Setenv("LEDGER_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", "/data/ledger.db")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("HISTORY_PAGE_SIZE", "25")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "/data/ledger.db", cfg.StoreDSN())
	assert.Equal(t, time.Hour, cfg.JWTTTL)
	assert.Equal(t, 25, cfg.HistoryPageSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestFromEnvInvalidValues(t *testing.T) {
	tests := map[string]string{
		"REDIS_DB":         "zero",
		"TRANSFER_TIMEOUT": "5 seconds",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.ErrorContains(t, err, key)
		})
	}
}
