package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DefaultLockExpiry bounds how long an in-flight request holds its key.
const DefaultLockExpiry = 30 * time.Second

// Locker grants exclusive ownership of an idempotency key while its first
// request runs.
type Locker interface {
	// TryLock acquires key without waiting. acquired is false when another
	// request holds it.
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, acquired bool, err error)
}

// RedisLocker implements Locker with redsync.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// compile-time interface check
var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a RedisLocker on client.
func NewRedisLocker(client redis.UniversalClient, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = DefaultLockExpiry
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	mutex := l.rs.NewMutex("lock:"+DefaultPrefix+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) ||
			strings.Contains(err.Error(), "lock already taken") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("idempotency: lock: %w", err)
	}

	unlock := func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("idempotency: unlock: %w", err)
		}
		if !ok {
			return errors.New("idempotency: lock was not held or already expired")
		}
		return nil
	}
	return unlock, true, nil
}
