package sessionstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// migrate applies the embedded schema migrations found in dir. An empty
// table keeps goose's default version table.
func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir, table string, logger *slog.Logger) error {
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to open %s migrations: %w", dir, err)
	}

	var opts []goose.ProviderOption
	if table != "" {
		opts = append(opts, goose.WithTableName(table))
	}
	if logger != nil {
		opts = append(opts, goose.WithSlog(logger))
	}

	provider, err := goose.NewProvider(dialect, db, fsys, opts...)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if logger != nil && len(results) > 0 {
		logger.InfoContext(ctx, "applied session schema migrations", "count", len(results))
	}
	return nil
}
