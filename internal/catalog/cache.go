package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type cachedTools struct {
	expiresAt time.Time
	tools     []Tool
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]cachedTools
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now, items: map[string]cachedTools{}}
}

func (c *MemoryCache) Get(_ context.Context, tenantID string) ([]Tool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.items[tenantID]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(cached.expiresAt) {
		delete(c.items, tenantID)
		return nil, false, nil
	}
	return append([]Tool(nil), cached.tools...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, tenantID string, tools []Tool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[tenantID] = cachedTools{
		expiresAt: c.now().Add(ttl),
		tools:     append([]Tool(nil), tools...),
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, tenantID string) error {
	c.mu.Lock()
	delete(c.items, tenantID)
	c.mu.Unlock()
	return nil
}

const redisKeyPrefix = "catalog:"

// RedisCache shares catalogs between instances as JSON values.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, tenantID string) ([]Tool, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+tenantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tools []Tool
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, false, err
	}
	return tools, true, nil
}

func (c *RedisCache) Set(ctx context.Context, tenantID string, tools []Tool, ttl time.Duration) error {
	raw, err := json.Marshal(tools)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+tenantID, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, tenantID string) error {
	return c.client.Del(ctx, redisKeyPrefix+tenantID).Err()
}
