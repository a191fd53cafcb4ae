package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:"

// RedisStore backs the limiter with a shared Redis so counters survive
// restarts and apply across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr bumps the counter and stamps the window TTL on first increment.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	fullKey := redisKeyPrefix + key
	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("expire %s: %w", key, err)
		}
		return int(count), time.Now().Add(window), nil
	}
	ttl, err := s.client.TTL(ctx, fullKey).Result()
	if err != nil || ttl < 0 {
		// Key without a TTL would never reset; re-stamp the window.
		ttl = window
		if err := s.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return int(count), time.Now().Add(ttl), nil
}

// Clear drops the counter for key.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}
