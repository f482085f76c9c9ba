package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteConfig holds configuration for the SQLite backend.
type SQLiteConfig struct {
	DSN         string
	BusyTimeout time.Duration // Defaults to 5s.
	// MigrationsTable overrides the goose version table name.
	MigrationsTable string
	Logger          *slog.Logger
}

var sqliteQueries = sqlQueries{
	insert:        "INSERT INTO sessions (id, payload, expires_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
	get:           "SELECT payload, expires_at FROM sessions WHERE id = ?",
	replace:       "UPDATE sessions SET payload = ?, expires_at = ? WHERE id = ?",
	touch:         "UPDATE sessions SET expires_at = ? WHERE id = ?",
	delete:        "DELETE FROM sessions WHERE id = ?",
	deleteExpired: "DELETE FROM sessions WHERE expires_at < ?",
}

// NewSQLiteBackend opens the database at dsn with default settings.
func NewSQLiteBackend(ctx context.Context, dsn string) (Backend, error) {
	return NewSQLiteBackendWithConfig(ctx, SQLiteConfig{DSN: dsn})
}

// NewSQLiteBackendWithConfig opens a SQLite database, applies the schema
// migrations and pins the single connection all statements run on.
func NewSQLiteBackendWithConfig(ctx context.Context, cfg SQLiteConfig) (Backend, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	// Pragmas go into the DSN so they apply to the connection the driver opens.
	// synchronous=NORMAL is safe in WAL mode and faster.
	dsn := cfg.DSN
	if !strings.Contains(dsn, "synchronous") {
		dsn = withPragma(dsn, "synchronous=NORMAL")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		dsn = withPragma(dsn, fmt.Sprintf("busy_timeout=%d", cfg.BusyTimeout.Milliseconds()))
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// The engine handle is shared by everything through one connection, which
	// also keeps ":memory:" databases alive for the life of the backend.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	// WAL is persistent for the database file; in-memory databases ignore it.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := migrate(ctx, db, goose.DialectSQLite3, "migrations/sqlite", cfg.MigrationsTable, cfg.Logger); err != nil {
		db.Close()
		return nil, err
	}

	b, err := newSQLBackend(ctx, db, sqliteQueries)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func withPragma(dsn, pragma string) string {
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_pragma=" + pragma
}
