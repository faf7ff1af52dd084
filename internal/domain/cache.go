package domain

import (
	"context"
	"time"
)

// SnapshotCache keeps the last good snapshot per view.
type SnapshotCache interface {
	Set(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, view string) (Snapshot, error)
	Invalidate(ctx context.Context, view string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub between components and processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channel names.
const (
	ChannelChanges  = "ch:changes"
	ChannelSnapshot = "ch:snapshot"
	ChannelHealth   = "ch:health"
	ChannelAlerts   = "ch:alerts"
)

// Deduper reports whether a key is seen for the first time within ttl.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
