package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Morditux/sessionstore"
)

// openBackend connects the backend selected by cfg.Backend.Type.
func openBackend(ctx context.Context, cfg BackendConfig, logger *slog.Logger) (sessionstore.Backend, error) {
	switch cfg.Type {
	case backendSQLite:
		return sessionstore.NewSQLiteBackendWithConfig(ctx, sessionstore.SQLiteConfig{
			DSN:             cfg.DSN,
			MigrationsTable: cfg.MigrationsTable,
			Logger:          logger,
		})
	case backendPostgres:
		return sessionstore.NewPostgreSQLBackendWithConfig(ctx, sessionstore.PostgreSQLConfig{
			DSN:             cfg.DSN,
			MigrationsTable: cfg.MigrationsTable,
			Logger:          logger,
		})
	case backendRedis:
		b, err := sessionstore.NewRedisBackend(ctx, sessionstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case backendMemcached:
		return sessionstore.NewMemcachedBackendWithConfig(sessionstore.MemcachedConfig{
			Servers: cfg.Memcached.Servers,
			Timeout: cfg.Memcached.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// openStore opens the configured backend and wraps it in a Store.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger, metrics *sessionstore.Metrics) (*sessionstore.Store, error) {
	backend, err := openBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Type, err)
	}

	var codec sessionstore.Codec = sessionstore.JSONCodec{}
	if cfg.Session.Codec == "gob" {
		codec = sessionstore.GobCodec{}
	}

	store, err := sessionstore.NewStore(sessionstore.Config{
		Backend:         backend,
		Codec:           codec,
		Logger:          logger,
		Metrics:         metrics,
		MaxSessionBytes: cfg.Session.MaxBytes,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}
