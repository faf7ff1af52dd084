// Package redis implements the dashboard's shared state on go-redis/v9:
// last-good snapshots, the import lock, API rate limiting, alert
// de-duplication and the pub/sub bus between serve and worker processes.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client. TLSEnabled
// is needed for managed providers such as Upstash.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

func (cfg ClientConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		ClientName: "resaledash",
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client owns the go-redis connection shared by every store in this package.
type Client struct {
	rdb *redis.Client
}

// New connects and pings; a server that does not answer is an error.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	c := &Client{rdb: redis.NewClient(cfg.options())}
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// Ping is used by the health probe.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", c.rdb.Options().Addr, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw client to the stores built on it.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
