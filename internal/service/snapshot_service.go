package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Fetcher loads one snapshot for a view. ingest.Adapter implements it.
type Fetcher interface {
	Fetch(ctx context.Context, view domain.View, now time.Time) (domain.Snapshot, error)
}

// SnapshotNotice is what SnapshotService announces on ch:snapshot.
type SnapshotNotice struct {
	View      string            `json:"view"`
	Status    domain.ViewStatus `json:"status"`
	Seq       uint64            `json:"seq"`
	FetchedAt time.Time         `json:"fetched_at"`
	Sales     int               `json:"sales"`
	Skipped   int               `json:"skipped"`
	Error     string            `json:"error,omitempty"`
}

// SnapshotConfig tunes SnapshotService.
type SnapshotConfig struct {
	FetchTimeout time.Duration
}

// viewSlot owns the state of one view. state is replaced wholesale; the
// mutex only guards the refresh bookkeeping.
type viewSlot struct {
	view  domain.View
	state atomic.Pointer[domain.ViewState]

	mu      sync.Mutex
	running bool
	queued  bool
	current []chan struct{} // waiters for the fetch in flight
	pending []chan struct{} // waiters for the queued re-run
	nextSeq uint64
}

// SnapshotService holds the latest snapshot of every configured view.
//
// Refreshes for one view never overlap: a request that arrives while a
// fetch is in flight queues at most one re-run, and every request arriving
// meanwhile shares that re-run. Each fetch carries a sequence number and a
// completion older than the applied snapshot is discarded. A failed fetch
// keeps the previous snapshot and marks the view stale.
type SnapshotService struct {
	fetcher Fetcher
	cache   domain.SnapshotCache
	bus     domain.SignalBus
	cfg     SnapshotConfig
	logger  *slog.Logger
	now     func() time.Time

	views []domain.View
	slots map[string]*viewSlot
	warm  singleflight.Group

	listenersMu sync.RWMutex
	listeners   []func(domain.ViewState)

	wg sync.WaitGroup
}

// NewSnapshotService creates a SnapshotService for views. cache and bus may
// be nil.
func NewSnapshotService(
	fetcher Fetcher,
	cache domain.SnapshotCache,
	bus domain.SignalBus,
	views []domain.View,
	cfg SnapshotConfig,
	logger *slog.Logger,
) *SnapshotService {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	s := &SnapshotService{
		fetcher: fetcher,
		cache:   cache,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "snapshot_service")),
		now:     time.Now,
		views:   views,
		slots:   make(map[string]*viewSlot, len(views)),
	}
	for _, v := range views {
		slot := &viewSlot{view: v}
		slot.state.Store(&domain.ViewState{View: v, Status: domain.ViewStatusLoading})
		s.slots[v.Name] = slot
	}
	return s
}

// Views returns the configured views in order.
func (s *SnapshotService) Views() []domain.View {
	return append([]domain.View(nil), s.views...)
}

// OnUpdate registers fn to be called after every applied state change.
// Callbacks run on the refresh goroutine and must not block.
func (s *SnapshotService) OnUpdate(fn func(domain.ViewState)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *SnapshotService) slot(name string) (*viewSlot, error) {
	slot, ok := s.slots[name]
	if !ok {
		return nil, fmt.Errorf("snapshot_service: %q: %w", name, domain.ErrUnknownView)
	}
	return slot, nil
}

// Peek returns the current state of a view without triggering any I/O.
func (s *SnapshotService) Peek(name string) (domain.ViewState, error) {
	slot, err := s.slot(name)
	if err != nil {
		return domain.ViewState{}, err
	}
	return *slot.state.Load(), nil
}

// Get returns the current state of a view. A view that has never loaded is
// first warmed from the snapshot cache and then refreshed in the background;
// if the cache has nothing, Get waits for the first fetch.
func (s *SnapshotService) Get(ctx context.Context, name string) (domain.ViewState, error) {
	slot, err := s.slot(name)
	if err != nil {
		return domain.ViewState{}, err
	}
	st := slot.state.Load()
	if st.Status != domain.ViewStatusLoading {
		return *st, nil
	}

	if s.warmFromCache(ctx, slot) {
		s.Kick(name)
		return *slot.state.Load(), nil
	}
	return s.wait(ctx, slot, s.request(slot, true))
}

// warmFromCache loads the last good snapshot from the cache once per cold
// view, however many callers ask at the same time.
func (s *SnapshotService) warmFromCache(ctx context.Context, slot *viewSlot) bool {
	if s.cache == nil {
		return false
	}
	v, _, _ := s.warm.Do(slot.view.Name, func() (any, error) {
		if slot.state.Load().Status != domain.ViewStatusLoading {
			return true, nil
		}
		snap, err := s.cache.Get(ctx, slot.view.Name)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "snapshot_service: cache read failed",
					slog.String("view", slot.view.Name),
					slog.String("error", err.Error()),
				)
			}
			return false, nil
		}
		// Sequence numbers are per process; any local fetch supersedes it.
		snap.Seq = 0
		s.apply(slot, readyState(slot.view, &snap, s.now()))
		s.logger.InfoContext(ctx, "snapshot_service: warmed from cache",
			slog.String("view", slot.view.Name),
			slog.Int("sales", len(snap.Sales)),
			slog.Time("fetched_at", snap.FetchedAt),
		)
		return true, nil
	})
	warmed, _ := v.(bool)
	return warmed
}

// Refresh fetches a view and waits for the result. If a fetch is already in
// flight, the call joins the single queued re-run instead of starting
// another. Cancelling ctx stops the wait, not the shared fetch.
func (s *SnapshotService) Refresh(ctx context.Context, name string) (domain.ViewState, error) {
	slot, err := s.slot(name)
	if err != nil {
		return domain.ViewState{}, err
	}
	return s.wait(ctx, slot, s.request(slot, false))
}

func (s *SnapshotService) wait(ctx context.Context, slot *viewSlot, done <-chan struct{}) (domain.ViewState, error) {
	select {
	case <-done:
		return *slot.state.Load(), nil
	case <-ctx.Done():
		return *slot.state.Load(), ctx.Err()
	}
}

// Kick requests a refresh of a view without waiting for it.
func (s *SnapshotService) Kick(name string) {
	if slot, ok := s.slots[name]; ok {
		s.request(slot, false)
	}
}

// RefreshAll kicks every view. Push notifications land here.
func (s *SnapshotService) RefreshAll() {
	for _, v := range s.views {
		s.Kick(v.Name)
	}
}

// Run refreshes every view once and then every interval until ctx ends.
// A non-positive interval refreshes only once.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) error {
	s.RefreshAll()
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RefreshAll()
		}
	}
}

// Wait blocks until every in-flight refresh goroutine has finished.
func (s *SnapshotService) Wait() {
	s.wg.Wait()
}

// request starts a fetch, or queues the single re-run when one is in flight.
// With joinCurrent the caller settles for the fetch already in flight.
func (s *SnapshotService) request(slot *viewSlot, joinCurrent bool) <-chan struct{} {
	done := make(chan struct{})

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.running && joinCurrent {
		slot.current = append(slot.current, done)
		return done
	}
	if slot.running {
		slot.queued = true
		slot.pending = append(slot.pending, done)
		return done
	}
	slot.running = true
	slot.current = append(slot.current, done)
	s.wg.Add(1)
	go s.loop(slot)
	return done
}

// loop runs fetches for slot until no re-run is queued.
func (s *SnapshotService) loop(slot *viewSlot) {
	defer s.wg.Done()
	for {
		slot.mu.Lock()
		slot.nextSeq++
		seq := slot.nextSeq
		slot.mu.Unlock()

		s.fetch(slot, seq)

		slot.mu.Lock()
		for _, ch := range slot.current {
			close(ch)
		}
		slot.current = nil
		if !slot.queued {
			slot.running = false
			slot.mu.Unlock()
			return
		}
		slot.queued = false
		slot.current, slot.pending = slot.pending, nil
		slot.mu.Unlock()
	}
}

func (s *SnapshotService) fetch(slot *viewSlot, seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	start := s.now()
	snap, err := s.fetcher.Fetch(ctx, slot.view, start)
	if err != nil {
		s.fail(ctx, slot, seq, err)
		return
	}
	snap.View = slot.view.Name
	snap.Seq = seq
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = start
	}

	st := readyState(slot.view, &snap, s.now())
	if !s.apply(slot, st) {
		s.logger.DebugContext(ctx, "snapshot_service: discarded out-of-order fetch",
			slog.String("view", slot.view.Name),
			slog.Uint64("seq", seq),
		)
		return
	}

	s.logger.InfoContext(ctx, "snapshot_service: refreshed",
		slog.String("view", slot.view.Name),
		slog.Uint64("seq", seq),
		slog.Int("sales", len(snap.Sales)),
		slog.Int("events", len(snap.Events)),
		slog.Int("skipped", snap.Skipped),
		slog.Duration("took", s.now().Sub(start)),
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "snapshot_service: cache write failed",
				slog.String("view", slot.view.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	s.announce(ctx, st)
}

// fail keeps the previous snapshot (stale) or reports error when there is
// none.
func (s *SnapshotService) fail(ctx context.Context, slot *viewSlot, seq uint64, err error) {
	for {
		prev := slot.state.Load()
		st := &domain.ViewState{
			View:      slot.view,
			Status:    domain.ViewStatusError,
			Error:     err.Error(),
			UpdatedAt: s.now(),
		}
		if prev.Snapshot != nil {
			st.Status = domain.ViewStatusStale
			st.Snapshot = prev.Snapshot
		}
		if !slot.state.CompareAndSwap(prev, st) {
			continue
		}

		s.logger.WarnContext(ctx, "snapshot_service: fetch failed",
			slog.String("view", slot.view.Name),
			slog.Uint64("seq", seq),
			slog.String("status", string(st.Status)),
			slog.String("error", err.Error()),
		)
		s.emit(*st)
		s.announce(ctx, st)
		return
	}
}

// apply installs st unless a snapshot with an equal or newer sequence is
// already in place.
func (s *SnapshotService) apply(slot *viewSlot, st *domain.ViewState) bool {
	for {
		cur := slot.state.Load()
		if cur.Snapshot != nil && st.Snapshot != nil &&
			cur.Snapshot.Seq >= st.Snapshot.Seq && cur.Snapshot.Seq != 0 {
			return false
		}
		if slot.state.CompareAndSwap(cur, st) {
			s.emit(*st)
			return true
		}
	}
}

func (s *SnapshotService) emit(st domain.ViewState) {
	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(st)
	}
}

func (s *SnapshotService) announce(ctx context.Context, st *domain.ViewState) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(NoticeOf(*st))
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelSnapshot, payload); err != nil {
		s.logger.WarnContext(ctx, "snapshot_service: publish failed",
			slog.String("view", st.View.Name),
			slog.String("error", err.Error()),
		)
	}
}

// NoticeOf summarises a view state for the bus and websocket clients.
func NoticeOf(st domain.ViewState) SnapshotNotice {
	n := SnapshotNotice{View: st.View.Name, Status: st.Status, Error: st.Error}
	if st.Snapshot != nil {
		n.Seq = st.Snapshot.Seq
		n.FetchedAt = st.Snapshot.FetchedAt
		n.Sales = len(st.Snapshot.Sales)
		n.Skipped = st.Snapshot.Skipped
	}
	return n
}

func readyState(v domain.View, snap *domain.Snapshot, at time.Time) *domain.ViewState {
	status := domain.ViewStatusReady
	if snap.Empty() {
		status = domain.ViewStatusEmpty
	}
	return &domain.ViewState{View: v, Status: status, Snapshot: snap, UpdatedAt: at}
}
