package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Open opens the database selected by cfg and applies pool settings.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		driver string
		dsn    string
	)
	switch cfg.Driver {
	case "sqlite":
		driver, dsn = "sqlite3", cfg.SQLite.Path
		if cfg.SQLite.JournalMode != "" && !strings.Contains(dsn, "_journal_mode") && dsn != ":memory:" {
			dsn += sep(dsn) + "_journal_mode=" + cfg.SQLite.JournalMode
		}
	case "postgres":
		driver, dsn = "postgres", cfg.Postgres.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch cfg.Driver {
	case "sqlite":
		if cfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
		}
	case "postgres":
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
	}
	return db, nil
}

func sep(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

// Migrate creates the schema if it does not exist. The statements are
// valid for both SQLite and Postgres.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
