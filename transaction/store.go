package transaction

import (
	"context"

	"github.com/Kushagra2569/transaction-service/id"
)

// Store is the append-only transaction log.
type Store interface {
	// AppendTransaction persists t. Returns ledger.ErrDuplicateID if t.ID
	// already exists.
	AppendTransaction(ctx context.Context, t *Transaction) error

	// GetTransaction returns a single entry or ledger.ErrTransactionNotFound.
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*Transaction, error)

	// ListTransactions returns one page of entries involving identity in
	// ascending (CreatedAt, ID) order.
	ListTransactions(ctx context.Context, identity string, opts ListOpts) ([]*Transaction, error)
}

// ListOpts selects a page of history.
type ListOpts struct {
	After *Cursor
	Limit int
}
