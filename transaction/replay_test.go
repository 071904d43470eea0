package transaction_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

func entry(from, to string, amount types.Amount, at time.Time) *transaction.Transaction {
	return &transaction.Transaction{ID: id.NewTransactionID(), From: from, To: to, Amount: amount, CreatedAt: at}
}

func TestReplay(t *testing.T) {
	now := time.Now()
	opening := map[string]types.Amount{"a@x.io": 100, "b@x.io": 0}

	got, err := transaction.Replay(opening, []*transaction.Transaction{
		entry("a@x.io", "b@x.io", 40, now),
		entry("b@x.io", "c@x.io", 15, now.Add(time.Second)),
	})
	require.NoError(t, err)

	assert.Equal(t, types.Amount(60), got["a@x.io"])
	assert.Equal(t, types.Amount(25), got["b@x.io"])
	assert.Equal(t, types.Amount(15), got["c@x.io"])
	assert.Equal(t, types.Amount(100), opening["a@x.io"], "opening map must not be mutated")
}

func TestHistoryOrdering(t *testing.T) {
	now := time.Now()
	early := entry("a", "b", 1, now)
	late := entry("a", "b", 1, now.Add(time.Millisecond))

	assert.True(t, transaction.Less(early, late))
	assert.False(t, transaction.Less(late, early))

	cur := transaction.CursorOf(early)
	assert.True(t, cur.After(late))
	assert.False(t, cur.After(early))

	var none *transaction.Cursor
	assert.True(t, none.After(early))
}

func TestInvolves(t *testing.T) {
	e := entry("a", "b", 5, time.Now())
	assert.True(t, e.Involves("a"))
	assert.True(t, e.Involves("b"))
	assert.False(t, e.Involves("c"))
}
