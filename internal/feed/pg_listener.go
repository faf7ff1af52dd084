// Package feed turns row-change notifications from the sale record store
// into dashboard refreshes.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// StatusReporter records the listener's connection state.
// service.HealthService implements it.
type StatusReporter interface {
	Report(ctx context.Context, service string, status domain.HealthStatus, detail string) error
}

// ServiceName is the service_health row the listener reports under.
const ServiceName = "realtime"

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// PGListener holds a dedicated connection that LISTENs on the change
// channel and republishes each notification on ch:changes. It reconnects
// with exponential backoff.
type PGListener struct {
	pool    *pgxpool.Pool
	channel string
	bus     domain.SignalBus
	health  StatusReporter
	logger  *slog.Logger

	connected atomic.Bool
	lastAt    atomic.Int64 // unix nanos of the last notification
}

// NewPGListener creates a listener on channel. health may be nil.
func NewPGListener(pool *pgxpool.Pool, channel string, bus domain.SignalBus, health StatusReporter, logger *slog.Logger) *PGListener {
	return &PGListener{
		pool:    pool,
		channel: channel,
		bus:     bus,
		health:  health,
		logger:  logger.With(slog.String("component", "pg_listener")),
	}
}

// Connected reports whether the listener currently holds a LISTEN session.
func (l *PGListener) Connected() bool { return l.connected.Load() }

// LastNotification returns when the last notification arrived, or the zero
// time if none has.
func (l *PGListener) LastNotification() time.Time {
	n := l.lastAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run listens until ctx is cancelled, reconnecting on failure.
func (l *PGListener) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		start := time.Now()
		err := l.listen(ctx)
		l.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}

		// A session that stayed up for a while resets the backoff.
		if time.Since(start) > maxBackoff {
			backoff = minBackoff
		}
		l.logger.WarnContext(ctx, "pg_listener: disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)
		l.report(ctx, domain.HealthWarn, fmt.Sprintf("reconnecting: %v", err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("pg_listener: acquire: %w", err)
	}
	// A LISTEN session must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("pg_listener: listen %s: %w", l.channel, err)
	}
	l.connected.Store(true)
	l.logger.InfoContext(ctx, "pg_listener: listening", slog.String("channel", l.channel))
	l.report(ctx, domain.HealthOK, "listening on "+l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("pg_listener: wait: %w", err)
		}
		l.handle(ctx, n.Payload, time.Now())
	}
}

func (l *PGListener) handle(ctx context.Context, payload string, at time.Time) {
	l.lastAt.Store(at.UnixNano())
	ev, err := DecodeChange(payload, at)
	if err != nil {
		l.logger.WarnContext(ctx, "pg_listener: bad payload",
			slog.String("payload", payload),
			slog.String("error", err.Error()),
		)
		return
	}
	l.logger.DebugContext(ctx, "pg_listener: change",
		slog.String("table", ev.Table),
		slog.String("op", string(ev.Op)),
		slog.String("id", ev.ID),
	)
	if err := Publish(ctx, l.bus, ev); err != nil {
		l.logger.WarnContext(ctx, "pg_listener: publish failed", slog.String("error", err.Error()))
	}
}

func (l *PGListener) report(ctx context.Context, status domain.HealthStatus, detail string) {
	if l.health == nil {
		return
	}
	if err := l.health.Report(ctx, ServiceName, status, detail); err != nil {
		l.logger.DebugContext(ctx, "pg_listener: health report failed", slog.String("error", err.Error()))
	}
}

// DecodeChange parses a {table, op, id} notification payload. Unknown
// operations are kept as-is; only the table is required.
func DecodeChange(payload string, at time.Time) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("feed: decode change: %w", err)
	}
	ev.Table = strings.TrimSpace(ev.Table)
	if ev.Table == "" {
		return domain.ChangeEvent{}, errors.New("feed: decode change: missing table")
	}
	ev.Op = domain.ChangeOp(strings.ToUpper(string(ev.Op)))
	if ev.At.IsZero() {
		ev.At = at
	}
	return ev, nil
}

// Publish announces ev on ch:changes.
func Publish(ctx context.Context, bus domain.SignalBus, ev domain.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: encode change: %w", err)
	}
	if err := bus.Publish(ctx, domain.ChannelChanges, payload); err != nil {
		return fmt.Errorf("feed: publish change: %w", err)
	}
	return nil
}
