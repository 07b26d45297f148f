package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/ramsalab/survey-api/pkg/errors"
)

// CacheRepository wraps Redis for caching and webhook deduplication. A nil
// client degrades gracefully: reads miss and dedupe claims always succeed,
// so a Redis outage never drops inbound messages.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// ClaimOnce atomically claims the key for the given TTL. It returns true when
// this caller is the first claimant, false when the key already exists. When
// Redis is unavailable the claim is granted, trading duplicate suppression
// for availability.
func (r *CacheRepository) ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}

	claimed, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("dedupe claim unavailable, accepting message", zap.String("key", key), zap.Error(err))
		}
		return true, nil
	}
	return claimed, nil
}

// Release drops a previously granted claim so the key can be claimed again.
// Used when handling the claimed event failed: the provider will retry the
// delivery and the retry must not be treated as a duplicate.
func (r *CacheRepository) Release(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
