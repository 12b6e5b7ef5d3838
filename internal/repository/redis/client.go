package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultSessionTTL      = 24 * time.Hour
	defaultDistributionTTL = 7 * 24 * time.Hour
)

// Client wraps the Redis client for battle sessions and cached distributions.
type Client struct {
	rdb             *redis.Client
	sessionTTL      time.Duration
	distributionTTL time.Duration
}

// NewClient creates a Redis client from a connection URL. A zero TTL falls
// back to the default.
func NewClient(redisURL string, sessionTTL, distributionTTL time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewClientFromPool(rdb, sessionTTL, distributionTTL), nil
}

// NewClientFromPool wraps an existing redis.Client for use in tests.
func NewClientFromPool(rdb *redis.Client, sessionTTL, distributionTTL time.Duration) *Client {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	if distributionTTL <= 0 {
		distributionTTL = defaultDistributionTTL
	}
	return &Client{rdb: rdb, sessionTTL: sessionTTL, distributionTTL: distributionTTL}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection for health probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
