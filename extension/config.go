package extension

import "time"

// Store driver names accepted by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the Ledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.ledger" or "ledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend when none was provided with
	// WithStore: memory, postgres, sqlite or mongo (default: memory).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for the selected driver. For sqlite it
	// is the database file path.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: "ledger").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// TransferTimeout bounds a single transfer including lock waits
	// (default: 5s).
	TransferTimeout time.Duration `json:"transfer_timeout" mapstructure:"transfer_timeout" yaml:"transfer_timeout"`

	// HistoryPageSize is the number of transactions fetched per page when
	// iterating an account's history (default: 100).
	HistoryPageSize int `json:"history_page_size" mapstructure:"history_page_size" yaml:"history_page_size"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMemory,
		Database:        "ledger",
		TransferTimeout: 5 * time.Second,
		HistoryPageSize: 100,
	}
}
