package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mr     *miniredis.Miniredis
	store  *RedisStore
	locker *RedisLocker
	calls  atomic.Int32
	status int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &fixture{
		mr:     mr,
		store:  NewRedisStore(client),
		locker: NewRedisLocker(client, time.Second),
		status: http.StatusCreated,
	}
}

func (f *fixture) handler(opts ...Option) http.Handler {
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	m := New(f.store, f.locker, opts...)
	return m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, n)
	}))
}

func do(h http.Handler, key, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReplaysCachedResponse(t *testing.T) {
	f := setup(t)
	h := f.handler()

	first := do(h, "k1", `{"amount":"1.00"}`)
	second := do(h, "k1", `{"amount":"1.00"}`)

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderHit))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.True(t, f.mr.Exists("idempotency:k1"))
	assert.InDelta(t, DefaultTTL.Seconds(), f.mr.TTL("idempotency:k1").Seconds(), 1)
}

func TestWithoutKeyPassesThrough(t *testing.T) {
	f := setup(t)
	h := f.handler()

	do(h, "", `{}`)
	do(h, "", `{}`)

	assert.Equal(t, int32(2), f.calls.Load())
	assert.Empty(t, f.mr.Keys())
}

func TestKeyReusedForDifferentRequest(t *testing.T) {
	f := setup(t)
	h := f.handler()

	do(h, "k1", `{"amount":"1.00"}`)
	rec := do(h, "k1", `{"amount":"2.00"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestServerErrorsAreNotCached(t *testing.T) {
	f := setup(t)
	f.status = http.StatusServiceUnavailable
	h := f.handler()

	do(h, "k1", `{}`)
	do(h, "k1", `{}`)

	assert.Equal(t, int32(2), f.calls.Load())
}

func TestClientErrorsAreCached(t *testing.T) {
	f := setup(t)
	f.status = http.StatusUnprocessableEntity
	h := f.handler()

	do(h, "k1", `{}`)
	rec := do(h, "k1", `{}`)

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInFlightKeyConflicts(t *testing.T) {
	f := setup(t)
	h := f.handler()

	unlock, acquired, err := f.locker.TryLock(context.Background(), "k1")
	require.NoError(t, err)
	require.True(t, acquired)

	rec := do(h, "k1", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int32(0), f.calls.Load())

	require.NoError(t, unlock(context.Background()))
	rec = do(h, "k1", `{}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestScopeSeparatesCallers(t *testing.T) {
	f := setup(t)
	h := f.handler(WithScope(func(r *http.Request) string { return r.Header.Get("X-Caller") }))

	do(h, "k1", `{}`, "X-Caller", "alice@example.com")
	do(h, "k1", `{}`, "X-Caller", "bob@example.com")

	assert.Equal(t, int32(2), f.calls.Load())
	assert.True(t, f.mr.Exists("idempotency:alice@example.com:k1"))
	assert.True(t, f.mr.Exists("idempotency:bob@example.com:k1"))
}

func TestRedisDownFailsOpen(t *testing.T) {
	f := setup(t)
	h := New(f.store, nil, WithLogger(slog.New(slog.DiscardHandler))).Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.calls.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
	f.mr.Close()

	rec := do(h, "k1", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestKeyTooLong(t *testing.T) {
	f := setup(t)
	rec := do(f.handler(), strings.Repeat("k", maxKeyLen+1), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
