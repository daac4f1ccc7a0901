package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/foresight/internal/models"
)

// Cache keeps finished forecast records in Redis so batch reruns can skip
// questions that already have a result.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to Redis and pings it. A zero ttl keeps records
// forever.
func NewCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func (c *Cache) Close() error { return c.client.Close() }

// Client exposes the underlying connection for callers that need raw
// Redis operations, such as the scheduler's locks.
func (c *Cache) Client() *redis.Client { return c.client }

func cacheKey(key string) string { return "foresight:forecast:" + key }

func (c *Cache) Save(ctx context.Context, key string, rec models.ForecastRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal forecast record: %w", err)
	}
	return c.client.Set(ctx, cacheKey(key), blob, c.ttl).Err()
}

// Load returns the cached record for key; the bool reports whether the
// key existed.
func (c *Cache) Load(ctx context.Context, key string) (models.ForecastRecord, bool, error) {
	blob, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err == redis.Nil {
		return models.ForecastRecord{}, false, nil
	}
	if err != nil {
		return models.ForecastRecord{}, false, err
	}
	var rec models.ForecastRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return models.ForecastRecord{}, false, fmt.Errorf("unmarshal forecast record: %w", err)
	}
	return rec, true, nil
}
