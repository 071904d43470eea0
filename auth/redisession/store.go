// Package redisession keeps auth sessions in Redis with a per-key TTL.
package redisession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kushagra2569/transaction-service/auth"
)

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "session:"

// compile-time interface check
var _ auth.SessionStore = (*Store)(nil)

// Store implements auth.SessionStore on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Store on client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put implements auth.SessionStore.
func (s *Store) Put(ctx context.Context, sessionID, identity string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+sessionID, identity, ttl).Err(); err != nil {
		return fmt.Errorf("redisession: set: %w", err)
	}
	return nil
}

// Lookup implements auth.SessionStore.
func (s *Store) Lookup(ctx context.Context, sessionID string) (string, error) {
	identity, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", auth.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redisession: get: %w", err)
	}
	return identity, nil
}

// Delete implements auth.SessionStore.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("redisession: del: %w", err)
	}
	return nil
}
