package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"propertyFeedWs/internal/modules/realtime/application/port"
	"propertyFeedWs/internal/modules/realtime/domain"
)

const DefaultCacheTTL = time.Hour

func latestKey(kind domain.Kind) string { return "latest:" + string(kind) }

func entityKey(kind domain.Kind, id string) string { return string(kind) + ":" + id }

// RedisEventCache stores the last normalized event of each kind and entity in Redis.
type RedisEventCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisEventCache(client redis.UniversalClient, ttl time.Duration) *RedisEventCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisEventCache{client: client, ttl: ttl}
}

func (c *RedisEventCache) Store(ctx context.Context, evt *domain.NormalizedEvent) error {
	if evt == nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, latestKey(evt.Kind), data, c.ttl)
	if evt.ID != "" {
		pipe.Set(ctx, entityKey(evt.Kind, evt.ID), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache event: %w", err)
	}
	return nil
}

func (c *RedisEventCache) Latest(ctx context.Context, kind domain.Kind) ([]byte, error) {
	return c.get(ctx, latestKey(kind))
}

func (c *RedisEventCache) Get(ctx context.Context, kind domain.Kind, id string) ([]byte, error) {
	return c.get(ctx, entityKey(kind, id))
}

func (c *RedisEventCache) get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return data, nil
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryEventCache is the in-process variant used with the memory broker driver.
type MemoryEventCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryEventCache(ttl time.Duration) *MemoryEventCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryEventCache{entries: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func (c *MemoryEventCache) Store(_ context.Context, evt *domain.NormalizedEvent) error {
	if evt == nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	entry := cacheEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[latestKey(evt.Kind)] = entry
	if evt.ID != "" {
		c.entries[entityKey(evt.Kind, evt.ID)] = entry
	}
	return nil
}

func (c *MemoryEventCache) Latest(_ context.Context, kind domain.Kind) ([]byte, error) {
	return c.get(latestKey(kind))
}

func (c *MemoryEventCache) Get(_ context.Context, kind domain.Kind, id string) ([]byte, error) {
	return c.get(entityKey(kind, id))
}

func (c *MemoryEventCache) get(key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, domain.ErrEventNotFound
	}
	return entry.data, nil
}

var (
	_ port.EventCache = (*RedisEventCache)(nil)
	_ port.EventCache = (*MemoryEventCache)(nil)
)
