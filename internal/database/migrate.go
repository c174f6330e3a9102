package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrationsTable records the applied schema version of the users and
// security events tables.
const migrationsTable = "stockroom_schema_migrations"

// RunMigrations brings the MariaDB schema up to the newest version found in
// migrationsPath. A schema left dirty by a failed earlier run is refused so
// an operator can repair it before the credential store is touched.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	source, err := migrationSource(migrationsPath)
	if err != nil {
		return err
	}

	driver, err := mysql.WithInstance(db, &mysql.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "mysql", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("schema version %d is dirty, fix it and force the version before starting", version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	slog.Info("schema up to date", slog.Uint64("version", uint64(version)))
	return nil
}

// migrationSource turns a directory into a file:// source URL, failing
// early when the directory is missing.
func migrationSource(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving migrations path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("migrations directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("migrations path %s is not a directory", abs)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
