package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsFS embeds the schema migrations for both database backends.
//go:embed migrations
var MigrationsFS embed.FS

// runMigrations applies all pending migrations for one backend dialect. The
// database driver comes from the caller because sqlite and postgres use
// different golang-migrate drivers over the same sql.DB plumbing.
func runMigrations(db *sql.DB, dialect string, newDriver func(*sql.DB) (database.Driver, error)) error {
	migrations, err := fs.Sub(MigrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("failed to open %s migrations: %w", dialect, err)
	}

	sourceDriver, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := newDriver(db)
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
