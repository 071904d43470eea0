//go:build integration

package mongo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/store/storetest"
)

// setupMongoContainer starts a single-node replica set, which transactions
// require, and returns its connection string.
func setupMongoContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := tcmongodb.Run(ctx, "mongo:7", tcmongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "directConnection=true"
}

func TestIntegration_Mongo_Conformance(t *testing.T) {
	uri := setupMongoContainer(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		// A fresh database per test keeps cases isolated.
		s, err := Open(ctx, uri, "ledger_"+strings.ReplaceAll(id.NewEventID().String(), "_", ""))
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}

func TestIntegration_Mongo_MigrateIsIdempotent(t *testing.T) {
	uri := setupMongoContainer(t)
	ctx := context.Background()

	s, err := Open(ctx, uri, "ledger")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
}
