package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/store/storetest"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestLockWaitHonorsDeadline(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, storetest.NewAccount("alice@example.com", 100)))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockAccounts(ctx, "alice@example.com"); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := s.Atomic(waitCtx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockAccounts(ctx, "alice@example.com")
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	// The lock is free again once the holder finishes.
	err = s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockAccounts(ctx, "alice@example.com")
		return err
	})
	require.NoError(t, err)
}

func TestApplyDeltaRequiresLock(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, storetest.NewAccount("alice@example.com", 100)))

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.ApplyDelta(ctx, "alice@example.com", -10)
		return err
	})
	require.Error(t, err)

	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.Balance)
}

func TestClosedStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Close())

	assert.True(t, errors.Is(s.Ping(ctx), ledger.ErrStoreClosed))
	assert.ErrorIs(t, s.CreateAccount(ctx, storetest.NewAccount("alice@example.com", 0)), ledger.ErrStoreClosed)
}

func TestAccountsSnapshotSorted(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, identity := range []string{"carol@example.com", "alice@example.com", "bob@example.com"} {
		require.NoError(t, s.CreateAccount(ctx, storetest.NewAccount(identity, 1)))
	}

	accts := s.Accounts()
	require.Len(t, accts, 3)
	assert.Equal(t, "alice@example.com", accts[0].Identity)
	assert.Equal(t, "carol@example.com", accts[2].Identity)

	accts[0].Balance = 999
	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Balance)
}

func TestUnitPublishesOnCommit(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, storetest.NewAccount("alice@example.com", 100)))
	require.NoError(t, s.CreateAccount(ctx, storetest.NewAccount("bob@example.com", 0)))

	txn := &transaction.Transaction{
		ID:        id.NewTransactionID(),
		From:      "alice@example.com",
		To:        "bob@example.com",
		Amount:    40,
		CreatedAt: time.Now().UTC(),
	}

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockAccounts(ctx, "alice@example.com", "bob@example.com"); err != nil {
			return err
		}
		debited, err := tx.ApplyDelta(ctx, "alice@example.com", -40)
		if err != nil {
			return err
		}
		assert.EqualValues(t, 60, debited.Balance)
		if _, err := tx.ApplyDelta(ctx, "bob@example.com", 40); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}

		// Nothing is visible outside the unit yet.
		alice, err := s.GetAccount(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.EqualValues(t, 100, alice.Balance)
		assert.Zero(t, s.Len())
		return nil
	})
	require.NoError(t, err)

	alice, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	bob, err := s.GetAccount(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.Amount(60), alice.Balance)
	assert.Equal(t, types.Amount(40), bob.Balance)
	assert.Equal(t, 1, s.Len())
}

func TestUnitDeltaChecksWorkingBalance(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, storetest.NewAccount("alice@example.com", 50)))

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockAccounts(ctx, "alice@example.com"); err != nil {
			return err
		}
		if _, err := tx.ApplyDelta(ctx, "alice@example.com", -30); err != nil {
			return err
		}
		_, err := tx.ApplyDelta(ctx, "alice@example.com", -30)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	got, err := s.GetAccount(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 50, got.Balance)
}
