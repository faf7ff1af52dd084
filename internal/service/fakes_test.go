package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func saleAt(id, eventID, eventName, price string, qty int, at time.Time) domain.Sale {
	return domain.Sale{
		ID:          id,
		EventID:     eventID,
		EventName:   eventName,
		TicketPrice: dec(price),
		Quantity:    qty,
		Platform:    domain.PlatformLiveFootballTickets,
		SoldAt:      at,
	}
}

// fakeFetcher counts calls and optionally blocks each fetch on gate.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	gate    chan struct{}
	fn      func(call int, view domain.View) (domain.Snapshot, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, view domain.View, now time.Time) (domain.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	snap, err := f.fn(n, view)
	if err == nil && snap.FetchedAt.IsZero() {
		snap.FetchedAt = now
	}
	return snap, err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memCache struct {
	mu    sync.Mutex
	snaps map[string]domain.Snapshot
}

func newMemCache() *memCache { return &memCache{snaps: map[string]domain.Snapshot{}} }

func (c *memCache) Set(_ context.Context, snap domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.View] = snap
	return nil
}

func (c *memCache) Get(_ context.Context, view string) (domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[view]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *memCache) Invalidate(_ context.Context, view string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, view)
	return nil
}

type published struct {
	channel string
	payload string
}

type recBus struct {
	mu  sync.Mutex
	msg []published
}

func (b *recBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msg = append(b.msg, published{channel, string(payload)})
	return nil
}

func (b *recBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *recBus) on(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.msg {
		if m.channel == channel {
			out = append(out, m.payload)
		}
	}
	return out
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeSaleStore struct {
	inserted []domain.NewSale
	batchErr error
}

func (f *fakeSaleStore) List(context.Context, domain.SaleQuery) ([]domain.SaleRow, error) {
	return nil, nil
}

func (f *fakeSaleStore) Insert(_ context.Context, n domain.NewSale) (string, error) {
	f.inserted = append(f.inserted, n)
	return "sale-new", nil
}

func (f *fakeSaleStore) InsertBatch(_ context.Context, sales []domain.NewSale) (int64, error) {
	if f.batchErr != nil {
		return 0, f.batchErr
	}
	f.inserted = append(f.inserted, sales...)
	return int64(len(sales)), nil
}

type fakeEventStore struct{ events []domain.Event }

func (f *fakeEventStore) ListByCategories(_ context.Context, ids []string) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		for _, id := range ids {
			if e.CategoryID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListByIDs(_ context.Context, ids []string) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		for _, id := range ids {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListAll(context.Context) ([]domain.Event, error) { return f.events, nil }

type fakeCategoryStore struct{ all []domain.Category }

func (f *fakeCategoryStore) ListAll(context.Context) ([]domain.Category, error) { return f.all, nil }

func (f *fakeCategoryStore) MatchName(_ context.Context, kw string) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range f.all {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(kw)) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeHealthStore struct {
	mu     sync.Mutex
	status map[string]domain.ServiceHealth
	logs   []domain.HealthLog
}

func newFakeHealthStore() *fakeHealthStore {
	return &fakeHealthStore{status: map[string]domain.ServiceHealth{}}
}

func (f *fakeHealthStore) UpsertStatus(_ context.Context, h domain.ServiceHealth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[h.ServiceName] = h
	return nil
}

func (f *fakeHealthStore) ListStatus(context.Context) ([]domain.ServiceHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ServiceHealth{}
	for _, h := range f.status {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeHealthStore) AppendLog(_ context.Context, e domain.HealthLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, e)
	return nil
}

func (f *fakeHealthStore) RecentLogs(_ context.Context, limit int) ([]domain.HealthLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.HealthLog{}
	for i := len(f.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.logs[i])
	}
	return out, nil
}

type countingRefresher struct {
	mu sync.Mutex
	n  int
}

func (r *countingRefresher) RefreshAll() {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}
