package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"

	ledger "github.com/Kushagra2569/transaction-service"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsTable records the applied schema version.
const MigrationsTable = "ledger_schema_migrations"

// Migrate applies every pending migration. It is safe to call on every
// start; an up-to-date schema is not an error.
func (s *Store) Migrate(_ context.Context) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("ledger/postgres: open migrations: %w", err)
	}

	// golang-migrate closes the handle it is given.
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrMigrationFailed, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrMigrationFailed, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: %w", ledger.ErrMigrationFailed, err)
	}

	version, dirty, _ := m.Version() //nolint:errcheck // informational
	s.logger.Info("postgres migrations applied", "version", version, "dirty", dirty)
	return nil
}
