package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bioguard/models"

	"github.com/redis/go-redis/v9"
)

const nutritionKeyPrefix = "bioguard:nutrition:"

// NutritionCache stores successful snapshots keyed by lookup input and source order.
type NutritionCache interface {
	Get(ctx context.Context, key string) (models.NutrientSnapshot, bool, error)
	Set(ctx context.Context, key string, snap models.NutrientSnapshot) error
}

type memoryEntry struct {
	snap    models.NutrientSnapshot
	expires time.Time
}

// MemoryNutritionCache is an in-process TTL map.
type MemoryNutritionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryNutritionCache(ttl time.Duration) *MemoryNutritionCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryNutritionCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryNutritionCache) Get(_ context.Context, key string) (models.NutrientSnapshot, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return models.NutrientSnapshot{}, false, nil
	}
	return e.snap, true, nil
}

func (c *MemoryNutritionCache) Set(_ context.Context, key string, snap models.NutrientSnapshot) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{snap: snap, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryNutritionCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *MemoryNutritionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisNutritionCache keeps snapshots as JSON strings with a TTL.
type RedisNutritionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisNutritionCache(client *redis.Client, ttl time.Duration) *RedisNutritionCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisNutritionCache{client: client, ttl: ttl}
}

func (c *RedisNutritionCache) Get(ctx context.Context, key string) (models.NutrientSnapshot, bool, error) {
	data, err := c.client.Get(ctx, nutritionKeyPrefix+key).Result()
	if err == redis.Nil {
		return models.NutrientSnapshot{}, false, nil
	}
	if err != nil {
		return models.NutrientSnapshot{}, false, fmt.Errorf("failed to get cached nutrition: %w", err)
	}
	var snap models.NutrientSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return models.NutrientSnapshot{}, false, fmt.Errorf("failed to unmarshal cached nutrition: %w", err)
	}
	return snap, true, nil
}

func (c *RedisNutritionCache) Set(ctx context.Context, key string, snap models.NutrientSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal nutrition snapshot: %w", err)
	}
	if err := c.client.Set(ctx, nutritionKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache nutrition: %w", err)
	}
	return nil
}
