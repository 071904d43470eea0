// Command ledgerd serves the ledger over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/api"
	audithook "github.com/Kushagra2569/transaction-service/audit_hook"
	"github.com/Kushagra2569/transaction-service/audit_hook/mongoaudit"
	"github.com/Kushagra2569/transaction-service/auth"
	"github.com/Kushagra2569/transaction-service/auth/redisession"
	"github.com/Kushagra2569/transaction-service/events"
	"github.com/Kushagra2569/transaction-service/events/kafka"
	"github.com/Kushagra2569/transaction-service/events/rabbitmq"
	"github.com/Kushagra2569/transaction-service/extension"
	"github.com/Kushagra2569/transaction-service/idempotency"
	"github.com/Kushagra2569/transaction-service/internal/config"
	"github.com/Kushagra2569/transaction-service/internal/logging"
	"github.com/Kushagra2569/transaction-service/observability"
	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/store/mongo"
)

const (
	storeRetries    = 10
	storeRetryDelay = 3 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zl, logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "ledgerd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync() //nolint:errcheck // stderr sync fails on some platforms

	if err := run(cfg, logger); err != nil {
		zl.Fatal("ledgerd stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewPrometheusFactory(reg)

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithTransferTimeout(cfg.TransferTimeout),
		ledger.WithHistoryPageSize(cfg.HistoryPageSize),
		ledger.WithPlugin(observability.NewMetricsExtension(metrics)),
	}

	auditPlugin, closeAudit, err := openAudit(ctx, cfg, s, logger)
	if err != nil {
		return err
	}
	defer closeAudit()
	if auditPlugin != nil {
		opts = append(opts, ledger.WithPlugin(auditPlugin))
	}

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	if publisher != nil {
		opts = append(opts, ledger.WithPlugin(events.NewPlugin(publisher, events.WithLogger(logger))))
	}

	l := ledger.New(s, opts...)
	if err := l.Start(ctx); err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}
	defer func() {
		if err := l.Stop(); err != nil {
			logger.Error("ledger shutdown failed", "error", err)
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close() //nolint:errcheck // best effort on exit
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable; logins and idempotency keys will fail until it recovers", "error", err)
	}

	authSvc, err := auth.NewService(l, redisession.New(rdb), []byte(cfg.JWTSecret),
		auth.WithTokenTTL(cfg.JWTTTL),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	idem := idempotency.New(
		idempotency.NewRedisStore(rdb),
		idempotency.NewRedisLocker(rdb, 0),
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithScope(api.Identity),
		idempotency.WithLogger(logger),
	)

	srv := api.New(l, authSvc,
		api.WithLogger(logger),
		api.WithIdempotency(idem),
		api.WithMetrics(metrics),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server graceful shutdown failed", "error", err)
	}
	return nil
}

// openStore retries the backend connection while it comes up.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	storeCfg := extension.DefaultConfig()
	storeCfg.Driver = cfg.Store
	storeCfg.DSN = cfg.StoreDSN()
	storeCfg.Database = cfg.MongoDB

	var lastErr error
	for attempt := 1; attempt <= storeRetries; attempt++ {
		openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		s, err := extension.OpenStore(openCtx, storeCfg, logger)
		cancel()
		if err == nil {
			logger.Info("store connected", "driver", storeCfg.Driver)
			return s, nil
		}
		lastErr = err
		logger.Warn("store connection failed",
			"attempt", attempt,
			"max_attempts", storeRetries,
			"retry_in", storeRetryDelay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(storeRetryDelay):
		}
	}
	return nil, fmt.Errorf("open %s store: %w", storeCfg.Driver, lastErr)
}

// openAudit records the audit trail in MongoDB, sharing the store's
// database when the ledger itself runs on Mongo.
func openAudit(ctx context.Context, cfg *config.Config, s store.Store, logger *slog.Logger) (*audithook.Extension, func(), error) {
	var (
		db      *mongodriver.Database
		cleanup = func() {}
	)

	switch ms, ok := s.(*mongo.Store); {
	case ok:
		db = ms.Database()
	case cfg.MongoURI != "":
		client, err := mongodriver.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("audit: connect mongo: %w", err)
		}
		cleanup = func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("audit: disconnect mongo", "error", err)
			}
		}
		db = client.Database(cfg.MongoDB)
	default:
		logger.Info("audit trail disabled; set MONGO_URI to enable it")
		return nil, cleanup, nil
	}

	recorder := mongoaudit.New(db)
	if err := recorder.EnsureIndexes(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("audit: %w", err)
	}
	return audithook.New(recorder, audithook.WithLogger(logger)), cleanup, nil
}

// openPublisher prefers RabbitMQ and falls back to Kafka.
func openPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	switch {
	case cfg.RabbitMQURL != "":
		p, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info("publishing events to rabbitmq", "exchange", rabbitmq.DefaultExchange)
		return p, nil
	case len(cfg.KafkaBrokers) > 0:
		logger.Info("publishing events to kafka", "topic", cfg.KafkaTopic)
		return kafka.NewPublisher(cfg.KafkaBrokers, logger, kafka.WithTopic(cfg.KafkaTopic)), nil
	default:
		logger.Info("event publishing disabled")
		return nil, nil
	}
}
