package cache

import (
	"context"
	"encoding/json"
	"time"

	"oauth-refresh/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache handles Redis operations
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCache creates a new cache instance
func NewCache(redisURL string, logger *zap.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// GetAccessRecord retrieves a cached access record lookup. A cache miss
// returns nil, nil and the caller falls through to the repository.
func (c *Cache) GetAccessRecord(ctx context.Context, accessKey string) (*models.AccessRecord, error) {
	key := "access_record:" + accessKey
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get access record from cache", zap.Error(err))
		return nil, err
	}

	var record models.AccessRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		c.logger.Error("Failed to unmarshal access record", zap.Error(err))
		return nil, err
	}

	return &record, nil
}

// SetAccessRecord caches an access record lookup
func (c *Cache) SetAccessRecord(ctx context.Context, accessKey string, record *models.AccessRecord, ttl time.Duration) error {
	key := "access_record:" + accessKey
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set access record in cache", zap.Error(err))
		return err
	}

	return nil
}

// CheckRateLimit checks if the caller has exceeded the rate limit
func (c *Cache) CheckRateLimit(ctx context.Context, caller string, limit int, window time.Duration) (bool, error) {
	key := "rate_limit:" + caller
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		c.logger.Error("Failed to increment rate limit counter", zap.String("caller", caller), zap.Error(err))
		return false, err
	}

	// Set expiration on first request
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			c.logger.Error("Failed to set rate limit expiration", zap.Error(err))
		}
	}

	return count > int64(limit), nil
}
