package auth

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by a SessionStore for a missing or
// expired session.
var ErrSessionNotFound = errors.New("auth: session not found")

// SessionStore is the allowlist of live sessions. A token is accepted only
// while its session is present, so logging out revokes it before expiry.
type SessionStore interface {
	// Put records session id for identity until ttl elapses.
	Put(ctx context.Context, sessionID, identity string, ttl time.Duration) error
	// Lookup returns the identity bound to sessionID or ErrSessionNotFound.
	Lookup(ctx context.Context, sessionID string) (string, error)
	// Delete removes sessionID. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
