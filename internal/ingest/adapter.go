// Package ingest is the boundary between the sale record store and the
// aggregation engine: it resolves a view's filter into store reads and
// normalises the rows into a snapshot.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// Adapter fetches snapshots from the store.
type Adapter struct {
	sales      domain.SaleStore
	events     domain.EventStore
	categories domain.CategoryStore
	maxRows    int
	logger     *slog.Logger
}

// NewAdapter creates an Adapter. maxRows caps every sales scan when the view
// filter sets no limit of its own.
func NewAdapter(
	sales domain.SaleStore,
	events domain.EventStore,
	categories domain.CategoryStore,
	maxRows int,
	logger *slog.Logger,
) *Adapter {
	return &Adapter{
		sales:      sales,
		events:     events,
		categories: categories,
		maxRows:    maxRows,
		logger:     logger,
	}
}

// Fetch reads one snapshot for view as of now. Zero matching categories or
// events yield an empty snapshot; only store failures are errors.
func (a *Adapter) Fetch(ctx context.Context, view domain.View, now time.Time) (domain.Snapshot, error) {
	snap := domain.Snapshot{View: view.Name, FetchedAt: now, Sales: []domain.Sale{}, Events: []domain.Event{}}
	f := view.Filter

	events, scoped, err := a.resolveEvents(ctx, f)
	if err != nil {
		return snap, err
	}
	if scoped && len(events) == 0 {
		a.logger.DebugContext(ctx, "ingest: no events match view",
			slog.String("view", view.Name),
		)
		return snap, nil
	}

	q := domain.SaleQuery{
		Since: f.Since,
		Until: f.Until,
		Desc:  f.Desc,
		Limit: f.Limit,
	}
	if q.Since == nil && f.Days > 0 {
		since := now.AddDate(0, 0, -f.Days)
		q.Since = &since
	}
	if q.Limit <= 0 {
		q.Limit = a.maxRows
	}
	if scoped {
		q.EventIDs = make([]string, len(events))
		for i, e := range events {
			q.EventIDs[i] = e.ID
		}
	}

	rows, err := a.sales.List(ctx, q)
	if err != nil {
		return snap, fmt.Errorf("ingest: list sales: %w", err)
	}
	sales, skipped := Normalize(rows, a.logger.With(slog.String("view", view.Name)))
	if q.Limit > 0 && len(rows) >= q.Limit {
		a.logger.WarnContext(ctx, "ingest: sales scan hit row limit",
			slog.String("view", view.Name),
			slog.Int("limit", q.Limit),
		)
	}

	if !scoped {
		events, err = a.eventsForSales(ctx, sales)
		if err != nil {
			return snap, err
		}
	}

	snap.Sales = sales
	snap.Events = events
	snap.Skipped = skipped
	return snap, nil
}

// resolveEvents returns the events a filter is scoped to. scoped is false
// when the filter constrains neither category nor event ids.
func (a *Adapter) resolveEvents(ctx context.Context, f domain.SaleFilter) ([]domain.Event, bool, error) {
	if len(f.EventIDs) > 0 {
		events, err := a.events.ListByIDs(ctx, f.EventIDs)
		if err != nil {
			return nil, true, fmt.Errorf("ingest: list events by id: %w", err)
		}
		return events, true, nil
	}
	if f.CategoryKeyword == "" {
		return nil, false, nil
	}

	matched, err := a.categories.MatchName(ctx, f.CategoryKeyword)
	if err != nil {
		return nil, true, fmt.Errorf("ingest: match categories: %w", err)
	}
	if len(matched) == 0 {
		return nil, true, nil
	}
	all, err := a.categories.ListAll(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("ingest: list categories: %w", err)
	}
	ids := Descendants(all, matched)

	events, err := a.events.ListByCategories(ctx, ids)
	if err != nil {
		return nil, true, fmt.Errorf("ingest: list events by category: %w", err)
	}
	return events, true, nil
}

func (a *Adapter) eventsForSales(ctx context.Context, sales []domain.Sale) ([]domain.Event, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range sales {
		if s.EventID == "" {
			continue
		}
		if _, ok := seen[s.EventID]; ok {
			continue
		}
		seen[s.EventID] = struct{}{}
		ids = append(ids, s.EventID)
	}
	if len(ids) == 0 {
		return []domain.Event{}, nil
	}
	slices.Sort(ids)
	events, err := a.events.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ingest: list events for sales: %w", err)
	}
	return events, nil
}

// Descendants returns the ids of roots and every category below them,
// sorted. Cycles in parent links are tolerated.
func Descendants(all []domain.Category, roots []domain.Category) []string {
	children := make(map[string][]string)
	for _, c := range all {
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c.ID)
		}
	}
	seen := make(map[string]bool)
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, r.ID)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, children[id]...)
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
