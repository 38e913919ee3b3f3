package pricing

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores per-country USD unit prices with a TTL.
type Cache interface {
	Get(ctx context.Context, cc string) (float64, bool, error)
	Set(ctx context.Context, cc string, usd float64, ttl time.Duration) error
}

// MemoryCache is an in-process cache for tests and single-instance deployments.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	usd       float64
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, clock: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, cc string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cc]
	if !ok {
		return 0, false, nil
	}
	if !c.clock().Before(e.expiresAt) {
		delete(c.entries, cc)
		return 0, false, nil
	}
	return e.usd, true, nil
}

func (c *MemoryCache) Set(_ context.Context, cc string, usd float64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cc] = memoryEntry{usd: usd, expiresAt: c.clock().Add(ttl)}
	return nil
}

// RedisKeyPrefix namespaces cached prices. Keys look like twilio:pricing:sms:GB.
const RedisKeyPrefix = "twilio:pricing:sms:"

// RedisCache shares prices across API instances.
type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, cc string) (float64, bool, error) {
	v, err := c.rdb.Get(ctx, RedisKeyPrefix+cc).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	usd, err := strconv.ParseFloat(v, 64)
	if err != nil {
		// Corrupt entry: treat as a miss so the provider refreshes it.
		return 0, false, nil
	}
	return usd, true, nil
}

func (c *RedisCache) Set(ctx context.Context, cc string, usd float64, ttl time.Duration) error {
	return c.rdb.Set(ctx, RedisKeyPrefix+cc, strconv.FormatFloat(usd, 'f', -1, 64), ttl).Err()
}
