package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/crewplane/crewplane/internal/config"
	"github.com/crewplane/crewplane/migrations"
)

// openDatabase opens the configured SQL backend and verifies connectivity.
// Returns nil for the memory driver, which needs no database.
func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	var driverName string
	switch cfg.Driver {
	case "memory":
		return nil, nil
	case "postgres":
		driverName = "pgx"
	case "sqlite":
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations applies the embedded goose migrations for the configured
// dialect. Goose tracks applied versions in the database, so this is safe
// to run on every startup.
func runMigrations(db *sql.DB, driver string) error {
	var dialect, dir string
	switch driver {
	case "postgres":
		dialect, dir = "postgres", "postgres"
	case "sqlite":
		dialect, dir = "sqlite3", "sqlite"
	default:
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
