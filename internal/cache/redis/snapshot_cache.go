package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// DefaultSnapshotTTL applies when NewSnapshotCache is given a zero TTL.
const DefaultSnapshotTTL = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache. It keeps the last good
// snapshot per view so a restarted process can serve immediately.
//
// Key schema:
//
//	snapshot:{view} - JSON-encoded domain.Snapshot
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func snapshotKey(view string) string { return "snapshot:" + view }

// Set stores snap under its view, replacing any previous snapshot.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.View, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.View), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.View, err)
	}
	return nil
}

// Get returns the cached snapshot for view, or domain.ErrNotFound.
func (sc *SnapshotCache) Get(ctx context.Context, view string) (domain.Snapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(view)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot %s: %w", view, err)
	}
	return decodeSnapshot(view, data)
}

func decodeSnapshot(view string, data []byte) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", view, err)
	}
	if snap.Sales == nil {
		snap.Sales = []domain.Sale{}
	}
	if snap.Events == nil {
		snap.Events = []domain.Event{}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for view.
func (sc *SnapshotCache) Invalidate(ctx context.Context, view string) error {
	if err := sc.rdb.Del(ctx, snapshotKey(view)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", view, err)
	}
	return nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
