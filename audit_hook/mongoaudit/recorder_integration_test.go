//go:build integration

package mongoaudit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	audithook "github.com/Kushagra2569/transaction-service/audit_hook"
)

func setupRecorder(t *testing.T) *Recorder {
	t.Helper()
	ctx := context.Background()

	container, err := tcmongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	r := New(client.Database("audit"))
	require.NoError(t, r.EnsureIndexes(ctx))
	return r
}

func TestIntegration_Recorder_RecordAndFind(t *testing.T) {
	r := setupRecorder(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, action := range []string{audithook.ActionAccountCreated, audithook.ActionTransferCompleted} {
		require.NoError(t, r.Record(ctx, &audithook.AuditEvent{
			ID:        "aud_" + strings.Repeat("x", i+1),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Action:    action,
			Actor:     "alice@example.com",
			Outcome:   audithook.OutcomeSuccess,
			Severity:  audithook.SeverityInfo,
			Metadata:  map[string]any{"amount": "1.00"},
		}))
	}
	require.NoError(t, r.Record(ctx, &audithook.AuditEvent{
		ID: "aud_other", Timestamp: base, Action: audithook.ActionAccountCreated, Actor: "bob@example.com",
	}))

	got, err := r.Find(ctx, Filter{Actor: "alice@example.com"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, audithook.ActionTransferCompleted, got[0].Action)
	assert.Equal(t, base.Add(time.Second), got[0].Timestamp)
	assert.Equal(t, "1.00", got[0].Metadata["amount"])
}

func TestIntegration_Recorder_DuplicateIsIgnored(t *testing.T) {
	r := setupRecorder(t)
	ctx := context.Background()

	evt := &audithook.AuditEvent{ID: "aud_dup", Action: audithook.ActionFatalInconsistency, Severity: audithook.SeverityCritical}
	require.NoError(t, r.Record(ctx, evt))
	require.NoError(t, r.Record(ctx, evt))

	got, err := r.Find(ctx, Filter{Severity: audithook.SeverityCritical})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
