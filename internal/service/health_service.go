package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/notify"
)

// Service names recorded in service_health.
const (
	ServicePostgres  = "postgres"
	ServiceRedis     = "redis"
	ServiceS3        = "s3"
	ServiceRealtime  = "realtime"
	ServiceImporter  = "importer"
	ServiceArchiver  = "archiver"
	ServiceSnapshots = "snapshots"
)

// StatusReport is the operational overview served by /api/status.
type StatusReport struct {
	Services []domain.ServiceHealth `json:"services"`
	Logs     []domain.HealthLog     `json:"logs"`
}

// HealthTransition is published on ch:health when a service changes state.
type HealthTransition struct {
	ServiceName string              `json:"service_name"`
	From        domain.HealthStatus `json:"from,omitempty"`
	To          domain.HealthStatus `json:"to"`
	Detail      string              `json:"detail,omitempty"`
	At          time.Time           `json:"at"`
}

// HealthService records operational self-monitoring in service_health and
// health_logs. Only transitions are logged, published and notified; steady
// state refreshes last_seen.
type HealthService struct {
	store    domain.HealthStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last map[string]domain.HealthStatus
}

// NewHealthService creates a HealthService. bus and notifier may be nil.
func NewHealthService(store domain.HealthStore, bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *HealthService {
	return &HealthService{
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "health_service")),
		now:      time.Now,
		last:     make(map[string]domain.HealthStatus),
	}
}

// Report records the current status of a service.
func (s *HealthService) Report(ctx context.Context, service string, status domain.HealthStatus, detail string) error {
	now := s.now()
	if err := s.store.UpsertStatus(ctx, domain.ServiceHealth{
		ServiceName: service,
		Status:      status,
		Detail:      detail,
		LastSeen:    now,
	}); err != nil {
		return fmt.Errorf("health_service: report %s: %w", service, err)
	}

	s.mu.Lock()
	prev, seen := s.last[service]
	s.last[service] = status
	s.mu.Unlock()
	if seen && prev == status {
		return nil
	}

	msg := fmt.Sprintf("%s is %s", service, status)
	if detail != "" {
		msg += ": " + detail
	}
	if err := s.Log(ctx, service, levelFor(status), msg); err != nil {
		s.logger.WarnContext(ctx, "health_service: append log failed", slog.String("error", err.Error()))
	}

	t := HealthTransition{ServiceName: service, From: prev, To: status, Detail: detail, At: now}
	if s.bus != nil {
		payload, _ := json.Marshal(t)
		if err := s.bus.Publish(ctx, domain.ChannelHealth, payload); err != nil {
			s.logger.WarnContext(ctx, "health_service: publish failed", slog.String("error", err.Error()))
		}
	}

	if status == domain.HealthError {
		if err := s.notifier.Notify(ctx, notify.Message{
			Event: notify.EventServiceError,
			Level: notify.LevelError,
			Title: "Service error: " + service,
			Body:  detail,
		}); err != nil {
			s.logger.WarnContext(ctx, "health_service: notify failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Log appends one health_logs entry.
func (s *HealthService) Log(ctx context.Context, service string, level domain.LogLevel, message string) error {
	if err := s.store.AppendLog(ctx, domain.HealthLog{
		ServiceName: service,
		Level:       level,
		Message:     message,
		CreatedAt:   s.now(),
	}); err != nil {
		return fmt.Errorf("health_service: log %s: %w", service, err)
	}
	return nil
}

// Status returns every service's latest status and the newest log entries.
func (s *HealthService) Status(ctx context.Context, logLimit int) (StatusReport, error) {
	services, err := s.store.ListStatus(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("health_service: list status: %w", err)
	}
	logs, err := s.store.RecentLogs(ctx, logLimit)
	if err != nil {
		return StatusReport{}, fmt.Errorf("health_service: recent logs: %w", err)
	}
	return StatusReport{Services: services, Logs: logs}, nil
}

func levelFor(status domain.HealthStatus) domain.LogLevel {
	switch status {
	case domain.HealthError:
		return domain.LevelError
	case domain.HealthWarn:
		return domain.LevelWarn
	}
	return domain.LevelInfo
}
