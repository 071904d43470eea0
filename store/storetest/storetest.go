// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/credential"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// Factory returns a fresh, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGetAccount", testCreateAndGetAccount},
		{"DuplicateIdentity", testDuplicateIdentity},
		{"UnknownAccount", testUnknownAccount},
		{"ApplyDelta", testApplyDelta},
		{"RenameAccount", testRenameAccount},
		{"AppendAndGetTransaction", testAppendAndGetTransaction},
		{"ListTransactionsOrderAndPaging", testListTransactions},
		{"AtomicCommitsAccountWithCredential", testAtomicCommit},
		{"AtomicDiscardsInsertsOnError", testAtomicDiscardsInserts},
		{"AtomicDeltasOnError", testAtomicDeltasOnError},
		{"LockAccountsUnknown", testLockAccountsUnknown},
		{"ConcurrentDeltasNoLostUpdates", testConcurrentDeltas},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewAccount builds an account ready for insertion.
func NewAccount(identity string, balance types.Amount) *account.Account {
	return &account.Account{
		Entity:         types.EntityAt(time.Now().Truncate(time.Millisecond)),
		Identity:       identity,
		DisplayName:    "User " + identity,
		Balance:        balance,
		OpeningBalance: balance,
	}
}

// NewTransaction builds an entry stamped at ts.
func NewTransaction(from, to string, amount types.Amount, ts time.Time) *transaction.Transaction {
	return &transaction.Transaction{
		ID:        id.NewTransactionID(),
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: ts.UTC().Truncate(time.Millisecond),
	}
}

func mustCreate(t *testing.T, s store.Store, identity string, balance types.Amount) {
	t.Helper()
	require.NoError(t, s.CreateAccount(context.Background(), NewAccount(identity, balance)))
}

func testCreateAndGetAccount(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewAccount("alice@example.com", 10000)
	require.NoError(t, s.CreateAccount(ctx, a))

	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.Identity, got.Identity)
	assert.Equal(t, a.DisplayName, got.DisplayName)
	assert.Equal(t, types.Amount(10000), got.Balance)
	assert.Equal(t, types.Amount(10000), got.OpeningBalance)
	assert.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Millisecond)
}

func testDuplicateIdentity(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice@example.com", 100)

	err := s.CreateAccount(ctx, NewAccount("alice@example.com", 500))
	require.ErrorIs(t, err, ledger.ErrDuplicateIdentity)

	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.Amount(100), got.Balance)
}

func testUnknownAccount(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	_, err = s.ApplyDelta(ctx, "nobody@example.com", 100)
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	err = s.RenameAccount(ctx, "nobody@example.com", "a", "b")
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	_, err = s.GetCredential(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ledger.ErrCredentialNotFound)
}

func testApplyDelta(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice@example.com", 10000)

	tests := []struct {
		name    string
		delta   types.Amount
		want    types.Amount
		wantErr error
	}{
		{"credit", 500, 10500, nil},
		{"debit", -4000, 6500, nil},
		{"overdraw rejected", -6501, 6500, ledger.ErrInsufficientFunds},
		{"debit to zero", -6500, 0, nil},
		{"debit from zero rejected", -1, 0, ledger.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := s.ApplyDelta(ctx, "alice@example.com", tt.delta)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, a.Balance)
			}

			got, err := s.GetAccount(ctx, "alice@example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Balance)
		})
	}
}

func testRenameAccount(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice@example.com", 0)

	err := s.RenameAccount(ctx, "alice@example.com", "wrong name", "Alice")
	require.ErrorIs(t, err, ledger.ErrNameMismatch)

	require.NoError(t, s.RenameAccount(ctx, "alice@example.com", "User alice@example.com", "Alice"))

	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)

	err = s.RenameAccount(ctx, "alice@example.com", "User alice@example.com", "Eve")
	require.ErrorIs(t, err, ledger.ErrNameMismatch)
}

func testAppendAndGetTransaction(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice@example.com", 100)
	mustCreate(t, s, "bob@example.com", 0)

	txn := NewTransaction("alice@example.com", "bob@example.com", 40, time.Now())
	require.NoError(t, s.AppendTransaction(ctx, txn))

	got, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, txn.From, got.From)
	assert.Equal(t, txn.To, got.To)
	assert.Equal(t, txn.Amount, got.Amount)
	assert.True(t, txn.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", got.CreatedAt, txn.CreatedAt)

	err = s.AppendTransaction(ctx, txn)
	require.ErrorIs(t, err, ledger.ErrDuplicateID)

	_, err = s.GetTransaction(ctx, id.NewTransactionID())
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func testListTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice@example.com", 1000)
	mustCreate(t, s, "bob@example.com", 1000)
	mustCreate(t, s, "carol@example.com", 1000)

	base := time.Now().Add(-time.Hour)
	var aliceWant []id.TransactionID
	for i := range 7 {
		from, to := "alice@example.com", "bob@example.com"
		if i%2 == 1 {
			from, to = "carol@example.com", "alice@example.com"
		}
		// Two entries share a timestamp to exercise the id tiebreak.
		ts := base.Add(time.Duration(i/2*2) * time.Second)
		txn := NewTransaction(from, to, types.Amount(i+1), ts)
		require.NoError(t, s.AppendTransaction(ctx, txn))
		aliceWant = append(aliceWant, txn.ID)
	}
	require.NoError(t, s.AppendTransaction(ctx, NewTransaction("bob@example.com", "carol@example.com", 5, base)))

	all, err := s.ListTransactions(ctx, "alice@example.com", transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.True(t, transaction.Less(all[i-1], all[i]), "entries %d and %d out of order", i-1, i)
	}
	gotIDs := make(map[id.TransactionID]bool, len(all))
	for _, txn := range all {
		assert.True(t, txn.Involves("alice@example.com"))
		gotIDs[txn.ID] = true
	}
	for _, want := range aliceWant {
		assert.True(t, gotIDs[want], "missing %s", want)
	}

	var paged []*transaction.Transaction
	var after *transaction.Cursor
	for {
		page, err := s.ListTransactions(ctx, "alice@example.com", transaction.ListOpts{After: after, Limit: 3})
		require.NoError(t, err)
		paged = append(paged, page...)
		if len(page) < 3 {
			break
		}
		after = transaction.CursorOf(page[len(page)-1])
	}
	require.Len(t, paged, len(all))
	for i := range all {
		assert.Equal(t, all[i].ID, paged[i].ID)
	}

	none, err := s.ListTransactions(ctx, "dave@example.com", transaction.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAtomicCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewAccount("alice@example.com", 2500)
	cred := &credential.Credential{
		Entity:       a.Entity,
		Identity:     a.Identity,
		PasswordHash: []byte("$2a$10$hash"),
	}

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		return tx.PutCredential(ctx, cred)
	})
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.Amount(2500), got.Balance)

	gotCred, err := s.GetCredential(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, cred.PasswordHash, gotCred.PasswordHash)

	err = s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateAccount(ctx, NewAccount("alice@example.com", 0))
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateIdentity)
}

func testAtomicDiscardsInserts(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateAccount(ctx, NewAccount("alice@example.com", 100)); err != nil {
			return err
		}
		if err := tx.PutCredential(ctx, &credential.Credential{Identity: "alice@example.com", PasswordHash: []byte("x")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetAccount(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)
	_, err = s.GetCredential(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ledger.ErrCredentialNotFound)
}

// testAtomicDeltasOnError checks each backend does what its Atomicity
// advertises when a unit fails after moving money.
func testAtomicDeltasOnError(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice@example.com", 100)
	mustCreate(t, s, "bob@example.com", 0)
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockAccounts(ctx, "bob@example.com", "alice@example.com")
		if err != nil {
			return err
		}
		if len(locked) != 2 || locked[0].Identity != "alice@example.com" {
			return fmt.Errorf("unexpected lock result: %v", locked)
		}
		if _, err := tx.ApplyDelta(ctx, "alice@example.com", -40); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	alice, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)

	switch s.Atomicity() {
	case store.Transactional:
		assert.Equal(t, types.Amount(100), alice.Balance, "transactional store kept a write of a failed unit")
	case store.LockOrdered:
		assert.Equal(t, types.Amount(60), alice.Balance, "lock-ordered store should apply deltas in place")
	default:
		t.Fatalf("unknown atomicity %v", s.Atomicity())
	}
}

func testLockAccountsUnknown(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustCreate(t, s, "alice@example.com", 100)

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockAccounts(ctx, "alice@example.com", "ghost@example.com")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrUnknownAccount)
}

func testConcurrentDeltas(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 20
	mustCreate(t, s, "alice@example.com", n*5)

	var wg sync.WaitGroup
	errs := make(chan error, n+5)
	for range n + 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
				if _, err := tx.LockAccounts(ctx, "alice@example.com"); err != nil {
					return err
				}
				_, err := tx.ApplyDelta(ctx, "alice@example.com", -5)
				return err
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, n, ok)
	assert.Equal(t, 5, insufficient)

	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.Zero, got.Balance)
}
