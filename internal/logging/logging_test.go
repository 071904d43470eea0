package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZapForwardsRecords(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := FromZap(zap.New(core))

	logger.Debug("hidden")
	logger.Info("transfer committed", "from", "alice@example.com", "amount", "40.00")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "transfer committed", entries[0].Message)
	assert.Equal(t, "alice@example.com", entries[0].ContextMap()["from"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New("loud", "json", "ledgerd")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	zl, sl, err := New("debug", "console", "ledgerd")
	require.NoError(t, err)
	defer func() { _ = zl.Sync() }()

	assert.True(t, zl.Core().Enabled(zapcore.DebugLevel))
	assert.NotNil(t, sl)
}
