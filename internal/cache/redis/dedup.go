package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Deduper implements domain.Deduper with SET NX so that alerts fire once
// across every process sharing the Redis instance.
type Deduper struct {
	rdb *redis.Client
}

// NewDeduper creates a Deduper backed by the given Client.
func NewDeduper(c *Client) *Deduper {
	return &Deduper{rdb: c.Underlying()}
}

func dedupKey(key string) string { return "alert:seen:" + key }

// FirstSeen records key for ttl and reports whether it was absent before.
func (d *Deduper) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKey(key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup %s: %w", key, err)
	}
	return ok, nil
}

var _ domain.Deduper = (*Deduper)(nil)
