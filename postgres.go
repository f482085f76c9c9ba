package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// PostgreSQLConfig holds configuration for the PostgreSQL backend.
type PostgreSQLConfig struct {
	DSN             string
	MigrationsTable string
	Logger          *slog.Logger
}

var postgresQueries = sqlQueries{
	insert:        "INSERT INTO sessions (id, payload, expires_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
	get:           "SELECT payload, expires_at FROM sessions WHERE id = $1",
	replace:       "UPDATE sessions SET payload = $1, expires_at = $2 WHERE id = $3",
	touch:         "UPDATE sessions SET expires_at = $1 WHERE id = $2",
	delete:        "DELETE FROM sessions WHERE id = $1",
	deleteExpired: "DELETE FROM sessions WHERE expires_at < $1",
}

// NewPostgreSQLBackend creates a PostgreSQL backend with default configuration.
func NewPostgreSQLBackend(ctx context.Context, dsn string) (Backend, error) {
	return NewPostgreSQLBackendWithConfig(ctx, PostgreSQLConfig{DSN: dsn})
}

// NewPostgreSQLBackendWithConfig connects to PostgreSQL, applies the schema
// migrations and pins one connection for all session statements.
func NewPostgreSQLBackendWithConfig(ctx context.Context, cfg PostgreSQLConfig) (Backend, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgresql database: %w", err)
	}

	if err := migrate(ctx, db, goose.DialectPostgres, "migrations/postgres", cfg.MigrationsTable, cfg.Logger); err != nil {
		db.Close()
		return nil, err
	}

	b, err := newSQLBackend(ctx, db, postgresQueries)
	if err != nil {
		return nil, err
	}
	return b, nil
}
