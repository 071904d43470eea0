package account

import (
	"context"

	"github.com/Kushagra2569/transaction-service/types"
)

// Store owns account records and is the only writer of balances.
type Store interface {
	// CreateAccount inserts a new account. Returns ledger.ErrDuplicateIdentity
	// if the identity is taken.
	CreateAccount(ctx context.Context, a *Account) error

	// GetAccount returns the account or ledger.ErrUnknownAccount.
	GetAccount(ctx context.Context, identity string) (*Account, error)

	// ApplyDelta atomically adds delta to the balance. Returns
	// ledger.ErrInsufficientFunds if the result would be negative.
	ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*Account, error)

	// RenameAccount replaces the display name only if it still equals
	// expectedOld. Returns ledger.ErrNameMismatch otherwise.
	RenameAccount(ctx context.Context, identity, expectedOld, newName string) error
}
