// Package transaction defines committed transfer records and the
// append-only store that holds them.
package transaction

import (
	"time"

	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/types"
)

// Transaction is an immutable record of one committed transfer.
type Transaction struct {
	ID        id.TransactionID `json:"id"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Amount    types.Amount     `json:"amount"`
	CreatedAt time.Time        `json:"created_at"`
}

// Involves reports whether identity is the sender or the recipient.
func (t *Transaction) Involves(identity string) bool {
	return t.From == identity || t.To == identity
}

// Cursor marks a position in a history listing. Entries strictly after
// the cursor in (CreatedAt, ID) order are returned.
type Cursor struct {
	CreatedAt time.Time
	ID        id.TransactionID
}

// CursorOf returns the cursor positioned at t.
func CursorOf(t *Transaction) *Cursor {
	return &Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// Less reports whether t sorts before other in history order.
func Less(t, other *Transaction) bool {
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.Before(other.CreatedAt)
	}
	return t.ID.Compare(other.ID) < 0
}

// After reports whether t sorts strictly after the cursor.
func (c *Cursor) After(t *Transaction) bool {
	if c == nil {
		return true
	}
	if !t.CreatedAt.Equal(c.CreatedAt) {
		return t.CreatedAt.After(c.CreatedAt)
	}
	return t.ID.Compare(c.ID) > 0
}
