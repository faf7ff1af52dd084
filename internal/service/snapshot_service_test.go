package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

var allView = domain.View{Name: "all", Title: "All Sales"}

func snapshotOf(sales ...domain.Sale) domain.Snapshot {
	return domain.Snapshot{Sales: sales, Events: []domain.Event{}}
}

func oneSale(int, domain.View) (domain.Snapshot, error) {
	return snapshotOf(saleAt("s1", "e1", "Liverpool vs Chelsea", "100", 2, testNow)), nil
}

func newSnapshots(f *fakeFetcher, cache domain.SnapshotCache, bus domain.SignalBus) *SnapshotService {
	s := NewSnapshotService(f, cache, bus, []domain.View{allView}, SnapshotConfig{FetchTimeout: time.Second}, discardLogger())
	s.now = fixedNow
	return s
}

func TestSnapshotRefreshReady(t *testing.T) {
	cache := newMemCache()
	bus := &recBus{}
	svc := newSnapshots(&fakeFetcher{fn: oneSale}, cache, bus)

	st, err := svc.Refresh(context.Background(), "all")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewStatusReady, st.Status)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, uint64(1), st.Snapshot.Seq)
	assert.Equal(t, "all", st.Snapshot.View)

	cached, err := cache.Get(context.Background(), "all")
	require.NoError(t, err)
	assert.Len(t, cached.Sales, 1)

	notices := bus.on(domain.ChannelSnapshot)
	require.Len(t, notices, 1)
	var n SnapshotNotice
	require.NoError(t, json.Unmarshal([]byte(notices[0]), &n))
	assert.Equal(t, SnapshotNotice{View: "all", Status: domain.ViewStatusReady, Seq: 1, FetchedAt: testNow, Sales: 1}, n)
}

func TestSnapshotEmptyIsNotAnError(t *testing.T) {
	svc := newSnapshots(&fakeFetcher{fn: func(int, domain.View) (domain.Snapshot, error) {
		return snapshotOf(), nil
	}}, nil, nil)

	st, err := svc.Refresh(context.Background(), "all")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewStatusEmpty, st.Status)
	assert.Empty(t, st.Error)
}

func TestSnapshotFailureKeepsPreviousAsStale(t *testing.T) {
	svc := newSnapshots(&fakeFetcher{fn: func(call int, v domain.View) (domain.Snapshot, error) {
		if call == 1 {
			return oneSale(call, v)
		}
		return domain.Snapshot{}, errors.New("connection refused")
	}}, nil, nil)

	_, err := svc.Refresh(context.Background(), "all")
	require.NoError(t, err)
	st, err := svc.Refresh(context.Background(), "all")
	require.NoError(t, err)

	assert.Equal(t, domain.ViewStatusStale, st.Status)
	assert.Equal(t, "connection refused", st.Error)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, uint64(1), st.Snapshot.Seq)
	assert.Len(t, st.Snapshot.Sales, 1)
}

func TestSnapshotFailureWithoutPreviousIsError(t *testing.T) {
	svc := newSnapshots(&fakeFetcher{fn: func(int, domain.View) (domain.Snapshot, error) {
		return domain.Snapshot{}, errors.New("timeout")
	}}, nil, nil)

	st, err := svc.Get(context.Background(), "all")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewStatusError, st.Status)
	assert.Nil(t, st.Snapshot)
}

func TestSnapshotRefreshesCoalesce(t *testing.T) {
	f := &fakeFetcher{
		started: make(chan struct{}, 10),
		gate:    make(chan struct{}),
		fn:      oneSale,
	}
	svc := newSnapshots(f, nil, nil)
	slot := svc.slots["all"]

	first := svc.request(slot, false)
	<-f.started

	// Everything requested while the first fetch runs shares one re-run.
	svc.Kick("all")
	svc.RefreshAll()
	second := svc.request(slot, false)
	third := svc.request(slot, false)

	f.gate <- struct{}{}
	<-first
	assert.Equal(t, uint64(1), slot.state.Load().Snapshot.Seq)

	<-f.started
	f.gate <- struct{}{}
	<-second
	<-third
	svc.Wait()

	assert.Equal(t, 2, f.Calls())
	assert.Equal(t, uint64(2), slot.state.Load().Snapshot.Seq)
}

func TestSnapshotGetJoinsFetchInFlight(t *testing.T) {
	f := &fakeFetcher{
		started: make(chan struct{}, 10),
		gate:    make(chan struct{}),
		fn:      oneSale,
	}
	svc := newSnapshots(f, nil, nil)
	svc.Kick("all")
	<-f.started

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := svc.Get(context.Background(), "all")
			assert.NoError(t, err)
			assert.NotEqual(t, domain.ViewStatusLoading, st.Status)
		}()
	}
	// Give the readers a moment to join before the fetch completes.
	time.Sleep(20 * time.Millisecond)
	f.gate <- struct{}{}
	wg.Wait()
	svc.Wait()

	assert.Equal(t, 1, f.Calls())
}

func TestSnapshotDiscardsOlderSequence(t *testing.T) {
	svc := newSnapshots(&fakeFetcher{fn: oneSale}, nil, nil)
	slot := svc.slots["all"]

	newer := readyState(allView, &domain.Snapshot{View: "all", Seq: 5}, testNow)
	older := readyState(allView, &domain.Snapshot{View: "all", Seq: 4}, testNow)
	assert.True(t, svc.apply(slot, newer))
	assert.False(t, svc.apply(slot, older))
	assert.Equal(t, uint64(5), slot.state.Load().Snapshot.Seq)
}

func TestSnapshotWarmsFromCache(t *testing.T) {
	cache := newMemCache()
	require.NoError(t, cache.Set(context.Background(), domain.Snapshot{
		View: "all", Seq: 42, FetchedAt: testNow.Add(-time.Hour),
		Sales: []domain.Sale{saleAt("old", "e1", "Liverpool vs Chelsea", "90", 1, testNow.Add(-2*time.Hour))},
	}))
	f := &fakeFetcher{gate: make(chan struct{}), fn: oneSale}
	svc := newSnapshots(f, cache, nil)

	st, err := svc.Get(context.Background(), "all")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewStatusReady, st.Status)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, uint64(0), st.Snapshot.Seq, "cached sequence numbers are not reused")
	assert.Equal(t, "old", st.Snapshot.Sales[0].ID)

	f.gate <- struct{}{}
	svc.Wait()
	st, err = svc.Peek("all")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Snapshot.Seq)
	assert.Equal(t, "s1", st.Snapshot.Sales[0].ID)
}

func TestSnapshotUnknownView(t *testing.T) {
	svc := newSnapshots(&fakeFetcher{fn: oneSale}, nil, nil)
	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrUnknownView))
	_, err = svc.Refresh(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrUnknownView))
}

func TestSnapshotListenersSeeEveryState(t *testing.T) {
	svc := newSnapshots(&fakeFetcher{fn: func(call int, v domain.View) (domain.Snapshot, error) {
		if call == 2 {
			return domain.Snapshot{}, errors.New("down")
		}
		return oneSale(call, v)
	}}, nil, nil)

	var mu sync.Mutex
	var seen []domain.ViewStatus
	svc.OnUpdate(func(st domain.ViewState) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})

	for range 3 {
		_, err := svc.Refresh(context.Background(), "all")
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.ViewStatus{domain.ViewStatusReady, domain.ViewStatusStale, domain.ViewStatusReady}, seen)
}

func TestSnapshotRefreshWaitHonoursContext(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{}), fn: oneSale}
	svc := newSnapshots(f, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := svc.Refresh(ctx, "all")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.ViewStatusLoading, st.Status)

	f.gate <- struct{}{}
	svc.Wait()
	st, _ = svc.Peek("all")
	assert.Equal(t, domain.ViewStatusReady, st.Status, "the shared fetch still completes")
}
