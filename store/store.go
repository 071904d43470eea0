// Package store defines the persistence contract shared by every ledger
// backend (memory, postgres, sqlite, mongo).
package store

import (
	"context"

	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/credential"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// Atomicity describes what a backend guarantees for a unit of work.
type Atomicity int

const (
	// Transactional backends discard every write of a failed unit.
	Transactional Atomicity = iota + 1

	// LockOrdered backends apply writes in place while holding per-account
	// locks. A failed unit keeps the writes it already made, so callers
	// must compensate before releasing the unit.
	LockOrdered
)

func (a Atomicity) String() string {
	switch a {
	case Transactional:
		return "transactional"
	case LockOrdered:
		return "lock-ordered"
	default:
		return "unknown"
	}
}

// Tx is the view of a store inside a single unit of work. It is only
// valid for the duration of the Atomic callback.
type Tx interface {
	// LockAccounts locks the given identities in ascending order and returns
	// the locked records in the same order. Returns ledger.ErrUnknownAccount
	// if any identity is absent.
	LockAccounts(ctx context.Context, identities ...string) ([]*account.Account, error)

	// ApplyDelta changes one balance. The account must already be locked
	// by this unit on lock-ordered backends.
	ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error)

	// AppendTransaction writes a ledger entry.
	AppendTransaction(ctx context.Context, t *transaction.Transaction) error

	// CreateAccount inserts an account.
	CreateAccount(ctx context.Context, a *account.Account) error

	// PutCredential stores the credential for an identity.
	PutCredential(ctx context.Context, c *credential.Credential) error
}

// Store is the unified storage interface for all ledger records.
type Store interface {
	account.Store
	transaction.Store
	credential.Store

	// Atomic runs fn as one unit of work. A nil return commits; any error
	// (or a context deadline) aborts.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Atomicity reports how Atomic behaves on failure.
	Atomicity() Atomicity

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
