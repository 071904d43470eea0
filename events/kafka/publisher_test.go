package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kushagra2569/transaction-service/events"
)

func TestToMessage(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	e, err := events.New(events.TypeAccountCreated, at, events.AccountCreated{Identity: "alice@example.com"})
	require.NoError(t, err)

	msg, err := toMessage(e)
	require.NoError(t, err)

	assert.Equal(t, []byte(events.TypeAccountCreated), msg.Key)
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, e.ID, string(msg.Headers[0].Value))

	decoded, err := events.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, events.TypeAccountCreated, decoded.Type)
}

func TestNewPublisherTopic(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, nil, WithTopic("custom"))
	defer p.Close()

	assert.Equal(t, "custom", p.writer.Topic)
}
