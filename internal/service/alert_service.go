package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/notify"
	"github.com/alanyoungcy/resaledash/internal/teams"
)

// RiskAlert is published on ch:alerts when an event turns high risk.
type RiskAlert struct {
	View      string              `json:"view"`
	EventID   string              `json:"event_id"`
	EventName string              `json:"event_name"`
	Score     int                 `json:"score"`
	Level     analytics.RiskLevel `json:"level"`
	Reasons   []string            `json:"reasons"`
	At        time.Time           `json:"at"`
}

// AlertService watches refreshed snapshots and alerts once per TTL for each
// event scoring high risk.
type AlertService struct {
	analytics *AnalyticsService
	dedup     domain.Deduper
	bus       domain.SignalBus
	notifier  *notify.Notifier
	ttl       time.Duration
	logger    *slog.Logger

	queue chan domain.ViewState
}

// NewAlertService creates an AlertService. bus and notifier may be nil; a
// nil dedup keeps alert history in process.
func NewAlertService(
	analytics *AnalyticsService,
	dedup domain.Deduper,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	ttl time.Duration,
	logger *slog.Logger,
) *AlertService {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	if dedup == nil {
		dedup = NewMemoryDedup()
	}
	return &AlertService{
		analytics: analytics,
		dedup:     dedup,
		bus:       bus,
		notifier:  notifier,
		ttl:       ttl,
		logger:    logger.With(slog.String("component", "alert_service")),
		queue:     make(chan domain.ViewState, 16),
	}
}

// Observe queues a view state for evaluation. It never blocks; when the
// queue is full the state is dropped and the next refresh catches up.
func (s *AlertService) Observe(st domain.ViewState) {
	if st.Status != domain.ViewStatusReady {
		return
	}
	select {
	case s.queue <- st:
	default:
		s.logger.Debug("alert_service: queue full, dropping", slog.String("view", st.View.Name))
	}
}

// Run evaluates queued states until ctx is cancelled.
func (s *AlertService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-s.queue:
			if _, err := s.Evaluate(ctx, st); err != nil {
				s.logger.WarnContext(ctx, "alert_service: evaluate failed",
					slog.String("view", st.View.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Evaluate alerts on every high-risk event of st not alerted within the TTL
// and returns the alerts it raised.
func (s *AlertService) Evaluate(ctx context.Context, st domain.ViewState) ([]RiskAlert, error) {
	var raised []RiskAlert
	for _, r := range s.analytics.Risk(st, analytics.RiskHigh) {
		first, err := s.dedup.FirstSeen(ctx, "risk:"+r.EventID, s.ttl)
		if err != nil {
			return raised, fmt.Errorf("alert_service: dedup %s: %w", r.EventID, err)
		}
		if !first {
			continue
		}

		alert := RiskAlert{
			View:      st.View.Name,
			EventID:   r.EventID,
			EventName: r.EventName,
			Score:     r.Score,
			Level:     r.Level,
			Reasons:   r.Reasons,
			At:        time.Now(),
		}
		raised = append(raised, alert)
		s.logger.InfoContext(ctx, "alert_service: high risk event",
			slog.String("view", alert.View),
			slog.String("event_id", alert.EventID),
			slog.Int("score", alert.Score),
		)

		if s.bus != nil {
			payload, _ := json.Marshal(alert)
			if err := s.bus.Publish(ctx, domain.ChannelAlerts, payload); err != nil {
				s.logger.WarnContext(ctx, "alert_service: publish failed", slog.String("error", err.Error()))
			}
		}
		if err := s.notifier.Notify(ctx, alertMessage(alert)); err != nil {
			s.logger.WarnContext(ctx, "alert_service: notify failed", slog.String("error", err.Error()))
		}
	}
	return raised, nil
}

func alertMessage(a RiskAlert) notify.Message {
	title := a.EventName
	if f := teams.LookupFixture(a.EventName); f.Away != nil {
		title = fmt.Sprintf("%s %s v %s %s", f.Home.Flag, f.Home.Code, f.Away.Code, f.Away.Flag)
		title = strings.TrimSpace(title)
	}
	return notify.Message{
		Event: notify.EventRiskHigh,
		Level: notify.LevelWarn,
		Title: fmt.Sprintf("High risk (%d): %s", a.Score, title),
		Body:  a.EventName + "\n" + strings.Join(a.Reasons, "\n"),
	}
}
