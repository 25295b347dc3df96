package storage

import (
	"context"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
)

// OpenFromConfig opens an introspector with settings from config
func OpenFromConfig(ctx context.Context, cfg config.DatabaseConfig) (*Introspector, error) {
	if cfg.DSN == "" {
		return nil, errors.NewConfigError("database DSN is required for introspection", "database.dsn").
			WithSuggestion("Set CURRENT_DB_DSN or pass --dsn")
	}

	return Open(ctx, cfg.Driver, config.ExpandPath(cfg.DSN), Options{
		MaxConnections:  cfg.MaxConnections,
		ConnMaxLifetime: cfg.ConnMaxLifetimeDuration(),
		QueryTimeout:    cfg.QueryTimeoutDuration(),
	})
}
