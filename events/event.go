// Package events publishes ledger lifecycle events to a message broker.
// Every event travels in the same JSON envelope; its type doubles as the
// routing key.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/types"
)

// Event types.
const (
	TypeAccountCreated     = "account.created"
	TypeTransactionCreated = "transaction.created"
	TypeFatalInconsistency = "alert.fatal_inconsistency"
)

// Event is the broker envelope.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// AccountCreated is the data of an account.created event.
type AccountCreated struct {
	Identity       string       `json:"identity"`
	DisplayName    string       `json:"display_name"`
	OpeningBalance types.Amount `json:"opening_balance"`
}

// TransactionCreated is the data of a transaction.created event.
type TransactionCreated struct {
	TransactionID string       `json:"transaction_id"`
	From          string       `json:"from"`
	To            string       `json:"to"`
	Amount        types.Amount `json:"amount"`
	CreatedAt     time.Time    `json:"created_at"`
}

// FatalInconsistency is the data of an alert.fatal_inconsistency event.
type FatalInconsistency struct {
	TransactionID string       `json:"transaction_id,omitempty"`
	Actor         string       `json:"actor"`
	From          string       `json:"from"`
	To            string       `json:"to"`
	Amount        types.Amount `json:"amount"`
	Step          string       `json:"step,omitempty"`
	Error         string       `json:"error"`
}

// New wraps data in an envelope with a fresh id.
func New(eventType string, occurredAt time.Time, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", eventType, err)
	}
	return &Event{
		ID:         id.NewEventID().String(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Data:       raw,
	}, nil
}

// Decode unmarshals a JSON envelope.
func Decode(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("events: decode envelope: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("events: decode envelope: missing id or type")
	}
	return &e, nil
}

// Unmarshal decodes the event data into v.
func (e *Event) Unmarshal(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("events: decode %s data: %w", e.Type, err)
	}
	return nil
}
