package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationManager applies the embedded schema migrations
// FUNCTIONAL DISCOVERY: One migration directory per dialect; SQLite and
// Postgres disagree on identity columns and boolean defaults
type MigrationManager struct {
	config *Config
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(config *Config) *MigrationManager {
	return &MigrationManager{config: config}
}

// ApplyMigrations applies all pending migrations. An up-to-date schema is
// not an error.
// TECHNICAL DISCOVERY: The migrator owns a dedicated pool because closing a
// golang-migrate database driver closes the *sql.DB behind it
func (m *MigrationManager) ApplyMigrations() error {
	mig, err := m.newMigrator()
	if err != nil {
		return err
	}
	defer func() {
		_, _ = mig.Close()
	}()

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Version reports the current schema version.
func (m *MigrationManager) Version() (uint, bool, error) {
	mig, err := m.newMigrator()
	if err != nil {
		return 0, false, err
	}
	defer func() {
		_, _ = mig.Close()
	}()

	version, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m *MigrationManager) newMigrator() (*migrate.Migrate, error) {
	db, err := Open(m.config)
	if err != nil {
		return nil, err
	}

	driver, err := m.databaseDriver(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+m.config.Driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", source, m.config.Driver, driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return mig, nil
}

func (m *MigrationManager) databaseDriver(db *sql.DB) (migratedb.Driver, error) {
	switch m.config.Driver {
	case DriverPostgres:
		return postgres.WithInstance(db, &postgres.Config{})
	case DriverSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", m.config.Driver)
	}
}
