package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// HealthStore implements domain.HealthStore using PostgreSQL.
type HealthStore struct {
	pool *pgxpool.Pool
}

// NewHealthStore creates a new HealthStore backed by the given connection pool.
func NewHealthStore(pool *pgxpool.Pool) *HealthStore {
	return &HealthStore{pool: pool}
}

var _ domain.HealthStore = (*HealthStore)(nil)

// UpsertStatus records the latest status of a service.
func (s *HealthStore) UpsertStatus(ctx context.Context, h domain.ServiceHealth) error {
	const query = `
		INSERT INTO service_health (service_name, status, detail, last_seen)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (service_name) DO UPDATE SET
			status    = EXCLUDED.status,
			detail    = EXCLUDED.detail,
			last_seen = EXCLUDED.last_seen`
	if _, err := s.pool.Exec(ctx, query, h.ServiceName, string(h.Status), h.Detail, h.LastSeen); err != nil {
		return fmt.Errorf("postgres: upsert service health %s: %w", h.ServiceName, err)
	}
	return nil
}

// ListStatus returns every service's latest status.
func (s *HealthStore) ListStatus(ctx context.Context) ([]domain.ServiceHealth, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT service_name, status, COALESCE(detail, ''), last_seen FROM service_health ORDER BY service_name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list service health: %w", err)
	}
	defer rows.Close()

	out := []domain.ServiceHealth{}
	for rows.Next() {
		var h domain.ServiceHealth
		var status string
		if err := rows.Scan(&h.ServiceName, &status, &h.Detail, &h.LastSeen); err != nil {
			return nil, fmt.Errorf("postgres: scan service health: %w", err)
		}
		h.Status = domain.HealthStatus(status)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate service health: %w", err)
	}
	return out, nil
}

// AppendLog adds a health_logs entry. CreatedAt defaults to now when zero.
func (s *HealthStore) AppendLog(ctx context.Context, e domain.HealthLog) error {
	const query = `
		INSERT INTO health_logs (service_name, level, message, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))`
	var at any
	if !e.CreatedAt.IsZero() {
		at = e.CreatedAt
	}
	if _, err := s.pool.Exec(ctx, query, e.ServiceName, string(e.Level), e.Message, at); err != nil {
		return fmt.Errorf("postgres: append health log %s: %w", e.ServiceName, err)
	}
	return nil
}

// RecentLogs returns the newest health_logs entries first.
func (s *HealthStore) RecentLogs(ctx context.Context, limit int) ([]domain.HealthLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, service_name, level, message, created_at
		FROM health_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list health logs: %w", err)
	}
	defer rows.Close()

	out := []domain.HealthLog{}
	for rows.Next() {
		var e domain.HealthLog
		var level string
		if err := rows.Scan(&e.ID, &e.ServiceName, &level, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan health log: %w", err)
		}
		e.Level = domain.LogLevel(level)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate health logs: %w", err)
	}
	return out, nil
}
