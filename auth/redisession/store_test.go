package redisession

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kushagra2569/transaction-service/auth"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestPutLookupDelete(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ses_1", "alice@example.com", time.Hour))
	assert.True(t, mr.Exists("session:ses_1"))

	identity, err := s.Lookup(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", identity)

	require.NoError(t, s.Delete(ctx, "ses_1"))
	_, err = s.Lookup(ctx, "ses_1")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	assert.NoError(t, s.Delete(ctx, "ses_1"))
}

func TestSessionExpires(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ses_1", "alice@example.com", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := s.Lookup(ctx, "ses_1")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestLookupBackendError(t *testing.T) {
	s, mr := setupStore(t)
	mr.Close()

	_, err := s.Lookup(context.Background(), "ses_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrSessionNotFound)
}
