// Package idempotency deduplicates asynchronously submitted engagement
// commands by event id.
//
// Primary backend: Redis SETNX with TTL.
// Fallback: Postgres INSERT ... ON CONFLICT into processed_events.
// If neither is available, an in-memory store is used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store checks whether an event has already been processed and marks it.
type Store interface {
	// Check returns true if eventID was already processed.
	// If not seen, it atomically marks it as processed.
	Check(ctx context.Context, eventID string) (duplicate bool, err error)
	// Release forgets eventID so that a failed command can be redelivered.
	Release(ctx context.Context, eventID string) error
}

// NewStore picks the best available backend: Redis > Postgres > in-memory.
// When isProd is true, the in-memory fallback is refused.
func NewStore(rdb *redis.Client, pool *pgxpool.Pool, ttl time.Duration, isProd bool) (Store, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if rdb != nil {
		return newRedisStore(rdb, ttl), nil
	}
	if pool != nil {
		return newPostgresStore(pool), nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(), nil
}
