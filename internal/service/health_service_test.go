package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/notify"
)

type recSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (r *recSender) Name() string { return "rec" }

func (r *recSender) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func TestHealthReportsOnlyTransitions(t *testing.T) {
	store := newFakeHealthStore()
	bus := &recBus{}
	sender := &recSender{}
	svc := NewHealthService(store, bus, notify.NewNotifier([]notify.Sender{sender}, nil, discardLogger()), discardLogger())
	svc.now = fixedNow
	ctx := context.Background()

	require.NoError(t, svc.Report(ctx, ServiceRedis, domain.HealthOK, ""))
	require.NoError(t, svc.Report(ctx, ServiceRedis, domain.HealthOK, ""))
	require.NoError(t, svc.Report(ctx, ServiceRedis, domain.HealthError, "dial tcp: refused"))
	require.NoError(t, svc.Report(ctx, ServiceRedis, domain.HealthError, "dial tcp: refused"))

	assert.Len(t, store.logs, 2)
	assert.Equal(t, domain.LevelInfo, store.logs[0].Level)
	assert.Equal(t, domain.LevelError, store.logs[1].Level)
	assert.Equal(t, "redis is error: dial tcp: refused", store.logs[1].Message)

	transitions := bus.on(domain.ChannelHealth)
	require.Len(t, transitions, 2)
	var tr HealthTransition
	require.NoError(t, json.Unmarshal([]byte(transitions[1]), &tr))
	assert.Equal(t, domain.HealthOK, tr.From)
	assert.Equal(t, domain.HealthError, tr.To)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, notify.EventServiceError, sender.sent[0].Event)
	assert.Equal(t, "Service error: redis", sender.sent[0].Title)

	// Steady state still refreshes last_seen.
	assert.Equal(t, testNow, store.status[ServiceRedis].LastSeen)
}

func TestHealthStatus(t *testing.T) {
	store := newFakeHealthStore()
	svc := NewHealthService(store, nil, nil, discardLogger())
	ctx := context.Background()

	require.NoError(t, svc.Report(ctx, ServicePostgres, domain.HealthOK, ""))
	require.NoError(t, svc.Log(ctx, ServiceImporter, domain.LevelInfo, "import done"))
	require.NoError(t, svc.Log(ctx, ServiceArchiver, domain.LevelWarn, "slow upload"))

	rep, err := svc.Status(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rep.Services, 1)
	assert.Equal(t, ServicePostgres, rep.Services[0].ServiceName)
	require.Len(t, rep.Logs, 2)
	assert.Equal(t, "slow upload", rep.Logs[0].Message)
}
