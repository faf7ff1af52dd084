package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ domain.EventStore = (*EventStore)(nil)

const selectEvents = `
	SELECT id::text, name, category_id::text, event_date, venue, notes, round
	FROM events`

const orderEvents = ` ORDER BY event_date ASC NULLS LAST, name ASC`

// ListByCategories returns events belonging to any of the given categories.
func (s *EventStore) ListByCategories(ctx context.Context, categoryIDs []string) ([]domain.Event, error) {
	if len(categoryIDs) == 0 {
		return []domain.Event{}, nil
	}
	rows, err := s.pool.Query(ctx, selectEvents+` WHERE category_id::text = ANY($1)`+orderEvents, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by category: %w", err)
	}
	return collectEvents(rows)
}

// ListByIDs returns the events with the given ids. Unknown ids are ignored.
func (s *EventStore) ListByIDs(ctx context.Context, ids []string) ([]domain.Event, error) {
	if len(ids) == 0 {
		return []domain.Event{}, nil
	}
	rows, err := s.pool.Query(ctx, selectEvents+` WHERE id::text = ANY($1)`+orderEvents, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by id: %w", err)
	}
	return collectEvents(rows)
}

// ListAll returns every event.
func (s *EventStore) ListAll(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, selectEvents+orderEvents)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()
	out := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var categoryID, venue, notes, round *string
		if err := rows.Scan(&e.ID, &e.Name, &categoryID, &e.EventDate, &venue, &notes, &round); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.CategoryID = deref(categoryID)
		e.Venue = deref(venue)
		e.Notes = deref(notes)
		e.Round = deref(round)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
