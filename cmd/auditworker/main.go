// Command auditworker consumes ledger events from RabbitMQ and stores them
// as audit entries in MongoDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	audithook "github.com/Kushagra2569/transaction-service/audit_hook"
	"github.com/Kushagra2569/transaction-service/audit_hook/mongoaudit"
	"github.com/Kushagra2569/transaction-service/events"
	"github.com/Kushagra2569/transaction-service/events/rabbitmq"
	"github.com/Kushagra2569/transaction-service/internal/config"
	"github.com/Kushagra2569/transaction-service/internal/logging"
)

// auditCollection is kept apart from the in-process audit hook's collection.
const auditCollection = "audit_events"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zl, logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "auditworker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync() //nolint:errcheck // stderr sync fails on some platforms

	if err := run(cfg, logger); err != nil {
		zl.Fatal("auditworker stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.RabbitMQURL == "" || cfg.MongoURI == "" {
		return errors.New("RABBITMQ_URL and MONGO_URI are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("disconnect mongo", "error", err)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = client.Ping(pingCtx, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	recorder := mongoaudit.New(client.Database(cfg.MongoDB), mongoaudit.WithCollection(auditCollection))
	if err := recorder.EnsureIndexes(ctx); err != nil {
		return err
	}

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:      cfg.RabbitMQURL,
		Queue:    cfg.AuditQueue,
		Bindings: []string{"account.#", "transaction.#", "alert.#"},
		Tag:      "audit_worker",
	}, logger)
	if err != nil {
		return err
	}
	defer consumer.Close() //nolint:errcheck // best effort on exit

	return consumer.Run(ctx, handler(recorder, logger))
}

type recorder interface {
	Record(ctx context.Context, entry *audithook.AuditEvent) error
}

func handler(r recorder, logger *slog.Logger) rabbitmq.Handler {
	return func(ctx context.Context, e *events.Event) error {
		entry, err := toAuditEvent(e)
		if errors.Is(err, errSkip) {
			logger.Debug("skipping event", "type", e.Type, "id", e.ID)
			return nil
		}
		if err != nil {
			// A payload that cannot be decoded will not decode on redelivery.
			logger.Error("dropping undecodable event", "type", e.Type, "id", e.ID, "error", err)
			return nil
		}

		saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.Record(saveCtx, entry); err != nil {
			return err
		}
		logger.Info("audit entry stored", "action", entry.Action, "id", entry.ID)
		return nil
	}
}
