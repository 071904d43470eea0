// Package rabbitmq publishes and consumes ledger events on a RabbitMQ topic
// exchange. The event type is the routing key.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Kushagra2569/transaction-service/events"
)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "ledger_events"

// compile-time interface check
var _ events.Publisher = (*Publisher)(nil)

// Publisher publishes events as persistent JSON messages.
type Publisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex // amqp channels are not safe for concurrent publishing
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithExchange overrides the exchange name.
func WithExchange(name string) Option {
	return func(p *Publisher) { p.exchange = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// Dial connects to url, opens a channel and declares the exchange.
func Dial(url string, opts ...Option) (*Publisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Properties: amqp.Table{"connection_name": "ledger_publisher"},
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	p := &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: DefaultExchange,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := declareExchange(ch, p.exchange); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, e *events.Event) error {
	msg, err := toPublishing(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", e.Type, err)
	}

	p.logger.Debug("event published to rabbitmq", "routing_key", e.Type, "id", e.ID)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil && !p.conn.IsClosed() {
		p.logger.Warn("rabbitmq: close channel", "error", err)
	}
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

func toPublishing(e *events.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq: encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         e.Type,
		Timestamp:    e.OccurredAt,
		Body:         body,
	}, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", name, err)
	}
	return nil
}
