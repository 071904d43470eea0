package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Kushagra2569/transaction-service/events"
)

// Handler processes one event. A returned error requeues the message.
type Handler func(ctx context.Context, e *events.Event) error

// ConsumerConfig describes a durable queue bound to the exchange.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Bindings []string
	Tag      string
	Prefetch int
}

// Consumer delivers events from a durable queue to a Handler.
type Consumer struct {
	cfg     ConsumerConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NewConsumer connects and declares the exchange, the queue and its
// bindings.
func NewConsumer(cfg ConsumerConfig, logger *slog.Logger) (*Consumer, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Properties: amqp.Table{"connection_name": cfg.Tag},
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	c := &Consumer{cfg: cfg, conn: conn, logger: logger}

	if err := c.setup(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) setup() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	c.channel = ch

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}
	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", c.cfg.Queue, err)
	}
	for _, key := range c.cfg.Bindings {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq: bind %s to %s: %w", q.Name, key, err)
		}
	}
	return nil
}

// Run consumes until ctx is done or the channel closes. Malformed
// messages are dropped; handler failures are requeued.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	msgs, err := c.channel.Consume(c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	closed := c.channel.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("consumer started", "queue", c.cfg.Queue, "bindings", c.cfg.Bindings)

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr != nil {
				return fmt.Errorf("rabbitmq: channel closed: %w", amqpErr)
			}
			return errors.New("rabbitmq: channel closed")
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}
			c.deliver(ctx, d, handle)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery, handle Handler) {
	e, err := events.Decode(d.Body)
	if err != nil {
		c.logger.Error("dropping malformed message", "routing_key", d.RoutingKey, "error", err)
		if err := d.Nack(false, false); err != nil {
			c.logger.Warn("nack failed", "error", err)
		}
		return
	}

	if err := handle(ctx, e); err != nil {
		c.logger.Error("handler failed, requeueing", "type", e.Type, "id", e.ID, "error", err)
		if err := d.Nack(false, true); err != nil {
			c.logger.Warn("nack failed", "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("ack failed", "error", err)
	}
}

// Close closes the channel and the connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	return c.conn.Close()
}
