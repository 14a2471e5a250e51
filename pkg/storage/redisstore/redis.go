// Package redisstore wraps the Redis client shared by the rate limiter and
// the health checker.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/potkeeper/pkg/storage"
)

// Client handles counter operations against Redis.
type Client struct {
	client *redis.Client
}

// New parses cfg.RedisURL, applies the pool overrides and pings the server.
func New(ctx context.Context, config storage.Config) (*Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client: client}, nil
}

// Wrap adopts an existing client.
func Wrap(client *redis.Client) *Client {
	return &Client{client: client}
}

// IncrWindow increments key and starts its expiry on the first hit of a
// window. It returns the count after the increment.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, fmt.Errorf("redis expire failed: %w", err)
		}
	}
	return count, nil
}

// TTL returns the remaining lifetime of key.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.TTL(ctx, key).Result()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Redis returns the underlying client for health checks.
func (c *Client) Redis() *redis.Client {
	return c.client
}

func (c *Client) PoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

func (c *Client) Close() error {
	return c.client.Close()
}
