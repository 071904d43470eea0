package ledger

import (
	"context"
	"fmt"
	"iter"

	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// reconcileAttempts bounds how often Reconcile retries when the account
// moves underneath it.
const reconcileAttempts = 3

// Transactions returns every committed transaction involving identity,
// oldest first. Pages are fetched lazily as the sequence is ranged over,
// and each range starts a fresh scan. An unknown identity yields a single
// ErrUnknownAccount.
func (l *Ledger) Transactions(ctx context.Context, identity string) iter.Seq2[*transaction.Transaction, error] {
	return func(yield func(*transaction.Transaction, error) bool) {
		if _, err := l.store.GetAccount(ctx, identity); err != nil {
			yield(nil, err)
			return
		}

		var after *transaction.Cursor
		for {
			page, err := l.store.ListTransactions(ctx, identity, transaction.ListOpts{
				After: after,
				Limit: l.historyPageSize,
			})
			if err != nil {
				yield(nil, err)
				return
			}

			for _, t := range page {
				if !yield(t, nil) {
					return
				}
			}

			if len(page) < l.historyPageSize {
				return
			}
			after = transaction.CursorOf(page[len(page)-1])
		}
	}
}

// History collects Transactions into a slice.
func (l *Ledger) History(ctx context.Context, identity string) ([]*transaction.Transaction, error) {
	var out []*transaction.Transaction
	for t, err := range l.Transactions(ctx, identity) {
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTransaction returns a single ledger entry.
func (l *Ledger) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	return l.store.GetTransaction(ctx, txnID)
}

// Reconcile replays the history of identity over its opening balance and
// checks the result against the stored balance.
func (l *Ledger) Reconcile(ctx context.Context, identity string) error {
	for range reconcileAttempts {
		before, err := l.store.GetAccount(ctx, identity)
		if err != nil {
			return err
		}

		entries, err := l.History(ctx, identity)
		if err != nil {
			return err
		}

		after, err := l.store.GetAccount(ctx, identity)
		if err != nil {
			return err
		}
		if after.Balance != before.Balance || !after.UpdatedAt.Equal(before.UpdatedAt) {
			continue
		}

		replayed, err := transaction.Replay(map[string]types.Amount{identity: after.OpeningBalance}, entries)
		if err != nil {
			return err
		}
		if got := replayed[identity]; got != after.Balance {
			l.logger.Error("reconcile mismatch",
				"identity", identity,
				"stored", after.Balance.String(),
				"replayed", got.String(),
			)
			return fmt.Errorf("%w: %s stored %s, replayed %s", ErrReconcileMismatch, identity, after.Balance, got)
		}
		return nil
	}
	return fmt.Errorf("ledger: reconcile %s: account kept changing", identity)
}
