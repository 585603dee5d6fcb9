package storage

import (
	"errors"
	"fmt"

	"github.com/defi-portfolio-tracker/internal/logging"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Postgres schema migrations cover the relational stores: snapshots
// (daily per-wallet NAV rows) and nav_settings (monthly fee periods).
// The ClickHouse position_history table is managed separately through
// ClickHouseDB.EnsureSchema.

func newMigrator(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending Postgres migrations
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := newMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logging.Info("Postgres schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.WithField("path", migrationsPath).Info("Postgres migrations applied")
	return nil
}

// RollbackMigrations rolls back the most recent Postgres migration
func RollbackMigrations(databaseURL, migrationsPath string) error {
	m, err := newMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	logging.Info("Rolled back one Postgres migration")
	return nil
}

// MigrationVersion returns the current Postgres schema version. A dirty
// version means a migration failed partway and needs manual attention.
func MigrationVersion(databaseURL, migrationsPath string) (version uint, dirty bool, err error) {
	m, migrateErr := newMigrator(databaseURL, migrationsPath)
	if migrateErr != nil {
		return 0, false, migrateErr
	}
	defer func() {
		_, _ = m.Close() // nolint:errcheck // cleanup in defer
	}()

	version, dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}
