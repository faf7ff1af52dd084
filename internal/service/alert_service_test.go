package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/notify"
)

// riskyState holds one event whose sales collapsed a few days before
// kick-off and one selling steadily months ahead.
func riskyState() domain.ViewState {
	soon := testNow.AddDate(0, 0, 5)
	later := testNow.AddDate(0, 3, 0)
	day := 24 * time.Hour
	sales := []domain.Sale{
		saleAt("s1", "e-eng", "England vs France", "100", 10, testNow.Add(-10*day)),
		saleAt("s2", "e-eng", "England vs France", "100", 1, testNow.Add(-1*day)),
		saleAt("s3", "e-liv", "Liverpool vs Chelsea", "80", 2, testNow.Add(-10*day)),
		saleAt("s4", "e-liv", "Liverpool vs Chelsea", "80", 2, testNow.Add(-2*day)),
	}
	events := []domain.Event{
		{ID: "e-eng", Name: "England vs France", EventDate: &soon},
		{ID: "e-liv", Name: "Liverpool vs Chelsea", EventDate: &later},
	}
	return domain.ViewState{
		View:     allView,
		Status:   domain.ViewStatusReady,
		Snapshot: &domain.Snapshot{View: "all", Seq: 1, Sales: sales, Events: events},
	}
}

func newTestAnalytics() *AnalyticsService {
	a := NewAnalyticsService(nil, AnalyticsConfig{}, discardLogger())
	a.now = fixedNow
	return a
}

func TestAlertRaisedOncePerEvent(t *testing.T) {
	bus := &recBus{}
	sender := &recSender{}
	n := notify.NewNotifier([]notify.Sender{sender}, []string{notify.EventRiskHigh}, discardLogger())
	svc := NewAlertService(newTestAnalytics(), NewMemoryDedup(), bus, n, time.Hour, discardLogger())

	raised, err := svc.Evaluate(context.Background(), riskyState())
	require.NoError(t, err)
	require.Len(t, raised, 1)
	assert.Equal(t, "e-eng", raised[0].EventID)
	assert.Equal(t, analytics.RiskHigh, raised[0].Level)
	assert.Equal(t, 6, raised[0].Score)

	raised, err = svc.Evaluate(context.Background(), riskyState())
	require.NoError(t, err)
	assert.Empty(t, raised)

	published := bus.on(domain.ChannelAlerts)
	require.Len(t, published, 1)
	var a RiskAlert
	require.NoError(t, json.Unmarshal([]byte(published[0]), &a))
	assert.Equal(t, "all", a.View)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, notify.EventRiskHigh, sender.sent[0].Event)
	assert.Contains(t, sender.sent[0].Title, "High risk (6)")
	assert.Contains(t, sender.sent[0].Body, "England vs France")
}

func TestAlertObserveIgnoresUnreadyStates(t *testing.T) {
	svc := NewAlertService(newTestAnalytics(), NewMemoryDedup(), nil, nil, 0, discardLogger())
	st := riskyState()
	st.Status = domain.ViewStatusStale
	svc.Observe(st)
	assert.Len(t, svc.queue, 0)

	svc.Observe(riskyState())
	assert.Len(t, svc.queue, 1)
}

func TestAlertRunDrainsQueue(t *testing.T) {
	bus := &recBus{}
	svc := NewAlertService(newTestAnalytics(), NewMemoryDedup(), bus, nil, 0, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Observe(riskyState())
	assert.Eventually(t, func() bool { return len(bus.on(domain.ChannelAlerts)) == 1 },
		time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestMemoryDedupExpires(t *testing.T) {
	d := NewMemoryDedup()
	now := testNow
	d.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "risk:e1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	first, _ = d.FirstSeen(ctx, "risk:e1", time.Hour)
	assert.False(t, first)
	first, _ = d.FirstSeen(ctx, "risk:e2", time.Hour)
	assert.True(t, first)

	now = now.Add(time.Hour + time.Second)
	first, _ = d.FirstSeen(ctx, "risk:e1", time.Hour)
	assert.True(t, first)
}

func TestAlertServiceFallsBackToMemoryDedup(t *testing.T) {
	svc := NewAlertService(newTestAnalytics(), nil, nil, nil, 0, discardLogger())
	_, ok := svc.dedup.(*MemoryDedup)
	assert.True(t, ok)
}
