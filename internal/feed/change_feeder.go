package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Refresher re-aggregates every view. service.SnapshotService implements it.
type Refresher interface {
	RefreshAll()
}

// ChangeFeeder subscribes to ch:changes and turns bursts of relevant
// changes into one refresh. The first change of a burst arms a timer; every
// change until it fires shares the same refresh.
type ChangeFeeder struct {
	bus       domain.SignalBus
	refresher Refresher
	debounce  time.Duration
	logger    *slog.Logger
}

// NewChangeFeeder creates a ChangeFeeder. A non-positive debounce refreshes
// on every relevant change.
func NewChangeFeeder(bus domain.SignalBus, refresher Refresher, debounce time.Duration, logger *slog.Logger) *ChangeFeeder {
	return &ChangeFeeder{
		bus:       bus,
		refresher: refresher,
		debounce:  debounce,
		logger:    logger.With(slog.String("component", "change_feeder")),
	}
}

// Run consumes change events until ctx is cancelled or the subscription
// closes. A pending refresh is flushed before returning.
func (f *ChangeFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, domain.ChannelChanges)
	if err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "change_feeder: started", slog.Duration("debounce", f.debounce))
	defer f.logger.Info("change_feeder: stopped")

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending int
	)
	flush := func() {
		if pending == 0 {
			return
		}
		f.logger.Debug("change_feeder: refreshing", slog.Int("changes", pending))
		pending = 0
		f.refresher.RefreshAll()
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case <-fire:
			timer, fire = nil, nil
			flush()
		case data, ok := <-ch:
			if !ok {
				flush()
				return nil
			}
			var ev domain.ChangeEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				f.logger.DebugContext(ctx, "change_feeder: bad message",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			if !ev.AffectsAnalytics() {
				continue
			}
			pending++
			if f.debounce <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(f.debounce)
				fire = timer.C
			}
		}
	}
}
