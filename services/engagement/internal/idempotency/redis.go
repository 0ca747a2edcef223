package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisStore(client *redis.Client, ttl time.Duration) *redisStore {
	return &redisStore{client: client, ttl: ttl}
}

func key(eventID string) string { return "engagement:processed:" + eventID }

func (s *redisStore) Check(ctx context.Context, eventID string) (bool, error) {
	set, err := s.client.SetNX(ctx, key(eventID), 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX returns true if the key was SET (i.e. NOT a duplicate).
	return !set, nil
}

func (s *redisStore) Release(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, key(eventID)).Err()
}
