package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/resaledash/internal/csvio"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/ingest"
	"github.com/alanyoungcy/resaledash/internal/notify"
	"github.com/alanyoungcy/resaledash/internal/teams"
)

// importLockKey serialises bulk imports across processes.
const importLockKey = "import:sales"

const importLockTTL = 5 * time.Minute

// ImportResult reports the outcome of a bulk import. Every data line is
// either imported or listed in Issues.
type ImportResult struct {
	BatchID   string           `json:"batch_id"`
	TotalRows int              `json:"total_rows"`
	Imported  int              `json:"imported"`
	Skipped   int              `json:"skipped"`
	Issues    []csvio.RowError `json:"issues"`
}

// Refresher is told to re-aggregate after a write.
type Refresher interface {
	RefreshAll()
}

// SaleService writes sales: single entries and CSV bulk imports.
type SaleService struct {
	sales      domain.SaleStore
	events     domain.EventStore
	categories domain.CategoryStore
	locks      domain.LockManager
	health     *HealthService
	notifier   *notify.Notifier
	refresher  Refresher
	loc        *time.Location
	logger     *slog.Logger
}

// NewSaleService creates a SaleService. health, notifier and refresher may
// be nil.
func NewSaleService(
	sales domain.SaleStore,
	events domain.EventStore,
	categories domain.CategoryStore,
	locks domain.LockManager,
	health *HealthService,
	notifier *notify.Notifier,
	refresher Refresher,
	loc *time.Location,
	logger *slog.Logger,
) *SaleService {
	if loc == nil {
		loc = time.UTC
	}
	return &SaleService{
		sales:      sales,
		events:     events,
		categories: categories,
		locks:      locks,
		health:     health,
		notifier:   notifier,
		refresher:  refresher,
		loc:        loc,
		logger:     logger.With(slog.String("component", "sale_service")),
	}
}

// Create validates and stores one sale. The event must exist.
func (s *SaleService) Create(ctx context.Context, n domain.NewSale) (string, error) {
	n.Section = strings.TrimSpace(n.Section)
	n.Notes = strings.TrimSpace(n.Notes)
	if n.SoldAt.IsZero() {
		n.SoldAt = time.Now()
	}
	if err := n.Validate(); err != nil {
		return "", fmt.Errorf("sale_service: create: %w", err)
	}

	found, err := s.events.ListByIDs(ctx, []string{n.EventID})
	if err != nil {
		return "", fmt.Errorf("sale_service: look up event: %w", err)
	}
	if len(found) == 0 {
		return "", fmt.Errorf("sale_service: event %s: %w", n.EventID, domain.ErrNotFound)
	}

	id, err := s.sales.Insert(ctx, n)
	if err != nil {
		return "", fmt.Errorf("sale_service: create: %w", err)
	}
	s.logger.InfoContext(ctx, "sale_service: sale created",
		slog.String("sale_id", id),
		slog.String("event_id", n.EventID),
		slog.Int("quantity", n.Quantity),
	)
	s.refresh()
	return id, nil
}

// Import parses a CSV sheet and stores every row whose event resolves.
// Rows are skipped, never fatal: malformed lines and unknown event names end
// up in Issues. The stored rows are written in one transaction.
func (s *SaleService) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	result := ImportResult{BatchID: uuid.NewString(), Issues: []csvio.RowError{}}

	unlock, err := s.locks.Acquire(ctx, importLockKey, importLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return result, fmt.Errorf("sale_service: import already running: %w", domain.ErrLockHeld)
		}
		return result, fmt.Errorf("sale_service: import lock: %w", err)
	}
	defer unlock()

	sheet, err := csvio.ParseImport(r, s.loc)
	if err != nil {
		return result, fmt.Errorf("sale_service: import: %w", err)
	}
	result.TotalRows = sheet.Total
	result.Issues = append(result.Issues, sheet.Issues...)
	if sheet.Total == 0 {
		return result, fmt.Errorf("sale_service: import: %w", domain.ErrEmptyImport)
	}

	resolver, err := s.newEventResolver(ctx)
	if err != nil {
		return result, err
	}

	batch := make([]domain.NewSale, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		ev, ok := resolver.resolve(row.EventName, row.Category)
		if !ok {
			reason := "no matching event"
			if row.Category != "" {
				reason = fmt.Sprintf("no matching event in category %q", row.Category)
			}
			result.Issues = append(result.Issues, csvio.RowError{
				Line: row.Line, Field: "Event Name", Value: row.EventName, Reason: reason,
			})
			continue
		}
		batch = append(batch, domain.NewSale{
			EventID:     ev.ID,
			Section:     row.Section,
			Quantity:    row.Quantity,
			TicketPrice: row.Price,
			Platform:    row.Platform,
			SoldAt:      row.Date,
			Notes:       "import " + result.BatchID,
		})
	}

	if len(batch) > 0 {
		n, err := s.sales.InsertBatch(ctx, batch)
		if err != nil {
			s.recordImport(ctx, domain.LevelError, fmt.Sprintf("import %s failed: %v", result.BatchID, err))
			return result, fmt.Errorf("sale_service: import batch: %w", err)
		}
		result.Imported = int(n)
	}
	result.Skipped = result.TotalRows - result.Imported
	sortIssues(result.Issues)

	s.logger.InfoContext(ctx, "sale_service: import finished",
		slog.String("batch_id", result.BatchID),
		slog.Int("total", result.TotalRows),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped),
	)
	level := domain.LevelInfo
	if result.Skipped > 0 {
		level = domain.LevelWarn
	}
	summary := fmt.Sprintf("import %s: %d of %d rows imported, %d skipped",
		result.BatchID, result.Imported, result.TotalRows, result.Skipped)
	s.recordImport(ctx, level, summary)
	if err := s.notifier.Notify(ctx, notify.Message{
		Event: notify.EventImportCompleted,
		Level: notify.LevelInfo,
		Title: "Sales import finished",
		Body:  summary,
	}); err != nil {
		s.logger.WarnContext(ctx, "sale_service: notify failed", slog.String("error", err.Error()))
	}
	if result.Imported > 0 {
		s.refresh()
	}
	return result, nil
}

func (s *SaleService) recordImport(ctx context.Context, level domain.LogLevel, msg string) {
	if s.health == nil {
		return
	}
	if err := s.health.Log(ctx, ServiceImporter, level, msg); err != nil {
		s.logger.WarnContext(ctx, "sale_service: health log failed", slog.String("error", err.Error()))
	}
}

func (s *SaleService) refresh() {
	if s.refresher != nil {
		s.refresher.RefreshAll()
	}
}

func sortIssues(issues []csvio.RowError) {
	slices.SortStableFunc(issues, func(a, b csvio.RowError) int {
		return cmp.Compare(a.Line, b.Line)
	})
}

// eventResolver matches import rows to events by case- and accent-
// insensitive name, optionally scoped to a category subtree.
type eventResolver struct {
	byName     map[string][]domain.Event
	categories []domain.Category
	scopes     map[string]map[string]bool
}

func (s *SaleService) newEventResolver(ctx context.Context) (*eventResolver, error) {
	events, err := s.events.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("sale_service: list events: %w", err)
	}
	categories, err := s.categories.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("sale_service: list categories: %w", err)
	}
	r := &eventResolver{
		byName:     make(map[string][]domain.Event, len(events)),
		categories: categories,
		scopes:     make(map[string]map[string]bool),
	}
	for _, e := range events {
		key := teams.Fold(e.Name)
		r.byName[key] = append(r.byName[key], e)
	}
	return r, nil
}

// scope returns the ids of categories whose name contains keyword, plus
// their descendants.
func (r *eventResolver) scope(keyword string) map[string]bool {
	key := teams.Fold(keyword)
	if ids, ok := r.scopes[key]; ok {
		return ids
	}
	var roots []domain.Category
	for _, c := range r.categories {
		if strings.Contains(teams.Fold(c.Name), key) {
			roots = append(roots, c)
		}
	}
	ids := make(map[string]bool)
	for _, id := range ingest.Descendants(r.categories, roots) {
		ids[id] = true
	}
	r.scopes[key] = ids
	return ids
}

// resolve returns the first event, in store order, with a matching name.
func (r *eventResolver) resolve(name, category string) (domain.Event, bool) {
	candidates := r.byName[teams.Fold(name)]
	if strings.TrimSpace(category) == "" {
		if len(candidates) == 0 {
			return domain.Event{}, false
		}
		return candidates[0], true
	}
	scope := r.scope(category)
	for _, e := range candidates {
		if scope[e.CategoryID] {
			return e, true
		}
	}
	return domain.Event{}, false
}
