package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// MemoryDedup is an in-process domain.Deduper, used when no Redis is shared
// between processes. It is safe for concurrent use.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time // key -> expiry
	now  func() time.Time
}

// NewMemoryDedup creates an empty MemoryDedup.
func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]time.Time), now: time.Now}
}

// FirstSeen records key until ttl elapses and reports whether it was new.
// Expired entries are swept on every call.
func (d *MemoryDedup) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

var _ domain.Deduper = (*MemoryDedup)(nil)
