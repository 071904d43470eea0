// Package config loads process configuration from the environment, after
// reading an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the configuration of the ledger processes.
type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string

	Store       string
	PostgresURL string
	SQLitePath  string
	MongoURI    string
	MongoDB     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTTTL    time.Duration

	TransferTimeout time.Duration
	HistoryPageSize int
	IdempotencyTTL  time.Duration

	RabbitMQURL  string
	KafkaBrokers []string
	KafkaTopic   string
	AuditQueue   string

	ShutdownTimeout time.Duration
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:      getEnvOrDefault("LEDGER_ADDR", "127.0.0.1:3042"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		Store:       getEnvOrDefault("LEDGER_STORE", "memory"),
		PostgresURL: getEnvOrDefault("POSTGRES_URL", ""),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "ledger.db"),
		MongoURI:    getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnvOrDefault("MONGO_DB", "ledger"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		JWTSecret: getEnvOrDefault("JWT_SECRET", ""),

		RabbitMQURL: getEnvOrDefault("RABBITMQ_URL", ""),
		KafkaTopic:  getEnvOrDefault("KAFKA_TOPIC", "ledger-events"),
		AuditQueue:  getEnvOrDefault("AUDIT_QUEUE", "audit_queue"),
	}

	if brokers := getEnvOrDefault("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.HistoryPageSize, err = getEnvAsInt("HISTORY_PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = getEnvAsDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TransferTimeout, err = getEnvAsDuration("TRANSFER_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StoreDSN returns the connection string for the selected store.
func (c *Config) StoreDSN() string {
	switch c.Store {
	case "postgres":
		return c.PostgresURL
	case "sqlite":
		return c.SQLitePath
	case "mongo":
		return c.MongoURI
	default:
		return ""
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
