// Package kafka publishes ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Kushagra2569/transaction-service/events"
)

// DefaultTopic is the topic events are written to.
const DefaultTopic = "ledger-events"

// compile-time interface check
var _ events.Publisher = (*Publisher)(nil)

// Publisher writes events as JSON messages keyed by event type, so events
// of one type keep their relative order on a partition.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*kafka.Writer)

// WithTopic overrides the topic.
func WithTopic(topic string) Option {
	return func(w *kafka.Writer) { w.Topic = topic }
}

// NewPublisher creates a Publisher for brokers.
func NewPublisher(brokers []string, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  DefaultTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Logger:                 slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		ErrorLogger:            slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	for _, opt := range opts {
		opt(w)
	}

	logger.Info("kafka publisher initialized", "brokers", brokers, "topic", w.Topic)
	return &Publisher{writer: w, logger: logger}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, e *events.Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", e.Type, err)
	}
	p.logger.Debug("event published to kafka", "topic", p.writer.Topic, "type", e.Type, "id", e.ID)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: close writer: %w", err)
	}
	return nil
}

func toMessage(e *events.Event) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.Type),
		Value: body,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(e.ID)},
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}, nil
}
