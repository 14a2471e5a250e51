package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/potkeeper/pkg/storage/redisstore"
)

// DistributedRateLimiter implements fixed-window rate limiting in Redis so
// limits are shared across instances.
type DistributedRateLimiter struct {
	redis  *redisstore.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(client *redisstore.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = IdentifyRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  client,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

func (rl *DistributedRateLimiter) limit() int64 {
	return int64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// Allow counts the request in the current window. On Redis errors it
// reports allowed together with the error.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := rl.redis.IncrWindow(ctx, rl.key(key), rl.config.WindowDuration)
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return count <= rl.limit(), nil
}

// Remaining returns the number of remaining requests in the window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Redis().Get(ctx, rl.key(key)).Int64()
	if err == redis.Nil {
		return int(rl.limit()), nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.limit() - count
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), nil
}

// TTL returns the time until the rate limit window resets
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.key(key))
}

// Reset clears the rate limit for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Redis().Del(ctx, rl.key(key)).Err()
}
