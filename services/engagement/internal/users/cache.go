package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InvalidateSubject carries a user id (or "ALL") whenever a profile changes.
const InvalidateSubject = "users.profile.updated"

// Cache stores display names by user id.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, userID string) (string, bool, error)
	Set(ctx context.Context, userID, name string) error
}

type cacheItem struct {
	name      string
	expiresAt time.Time
}

// TTLCache is an in-memory Cache with per-entry expiry and optional NATS invalidation.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	sub   *nats.Subscription
}

// NewTTLCache creates a TTLCache and wires up NATS key-level invalidation when nc is non-nil.
func NewTTLCache(ttl time.Duration, nc *nats.Conn, subj string) (*TTLCache, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &TTLCache{
		items: make(map[string]cacheItem),
		ttl:   ttl,
	}
	if nc != nil && subj != "" {
		sub, err := nc.Subscribe(subj, func(m *nats.Msg) { c.Invalidate(string(m.Data)) })
		if err != nil {
			return nil, err
		}
		c.sub = sub
	}
	return c, nil
}

// Invalidate drops key, or everything when key is empty or "ALL".
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" || strings.EqualFold(key, "ALL") {
		c.items = make(map[string]cacheItem)
		return
	}
	delete(c.items, key)
}

func (c *TTLCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && time.Now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return it.name, true, nil
}

func (c *TTLCache) Set(_ context.Context, key, name string) error {
	c.mu.Lock()
	c.items[key] = cacheItem{name: name, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Close stops listening for invalidations.
func (c *TTLCache) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

// RedisCache shares display names across replicas.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl, Prefix: "engagement:users:name:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.Client.Get(ctx, c.Prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, name string) error {
	return c.Client.Set(ctx, c.Prefix+key, name, c.TTL).Err()
}

// CachedDirectory consults cache before next. Cache failures are logged and
// fall through to next.
type CachedDirectory struct {
	next  Directory
	cache Cache
	log   *zap.Logger
}

func NewCachedDirectory(next Directory, cache Cache, log *zap.Logger) *CachedDirectory {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedDirectory{next: next, cache: cache, log: log}
}

func (d *CachedDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	name, ok, err := d.cache.Get(ctx, userID)
	if err != nil {
		d.log.Warn("users cache get failed", zap.String("user_id", userID), zap.Error(err))
	}
	if ok {
		return name, nil
	}

	name, err = d.next.DisplayName(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := d.cache.Set(ctx, userID, name); err != nil {
		d.log.Warn("users cache set failed", zap.String("user_id", userID), zap.Error(err))
	}
	return name, nil
}
