// Package db opens the shared Postgres pool.
package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions overrides the pool defaults. Zero fields keep the default.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// Open parses dsn, applies pool limits and pings the server.
func Open(ctx context.Context, dsn string, opts ...PoolOptions) (*pgxpool.Pool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	if len(opts) > 0 {
		if opts[0].MaxConns > 0 {
			cfg.MaxConns = opts[0].MaxConns
		}
		if opts[0].MinConns > 0 {
			cfg.MinConns = opts[0].MinConns
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
