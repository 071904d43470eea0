package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	ledger "github.com/Kushagra2569/transaction-service"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsTable records the applied schema version.
const MigrationsTable = "ledger_schema_migrations"

// Migrate applies every pending migration.
func (s *Store) Migrate(_ context.Context) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("ledger/sqlite: open migrations: %w", err)
	}

	// golang-migrate closes the handle it is given.
	db, err := sql.Open(driverName, s.dsn)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: open migration handle: %w", err)
	}

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", ledger.ErrMigrationFailed, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", ledger.ErrMigrationFailed, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: %w", ledger.ErrMigrationFailed, err)
	}

	version, _, _ := m.Version() //nolint:errcheck // informational
	s.logger.Info("sqlite migrations applied", "version", version)
	return nil
}
