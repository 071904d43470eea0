package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kushagra2569/transaction-service/events"
)

func TestToPublishing(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	e, err := events.New(events.TypeTransactionCreated, at, events.TransactionCreated{
		TransactionID: "txn_1",
		From:          "alice@example.com",
		To:            "bob@example.com",
		Amount:        4000,
	})
	require.NoError(t, err)

	msg, err := toPublishing(e)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, e.ID, msg.MessageId)
	assert.Equal(t, events.TypeTransactionCreated, msg.Type)
	assert.Equal(t, at, msg.Timestamp)

	decoded, err := events.Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, e.ID, decoded.ID)

	var data events.TransactionCreated
	require.NoError(t, decoded.Unmarshal(&data))
	assert.Equal(t, "40.00", data.Amount.String())
}
