package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/teams"
)

// AnalyticsConfig parameterises dashboard computations.
type AnalyticsConfig struct {
	Rules      analytics.RiskRules
	CostModel  analytics.CostModel
	Location   *time.Location
	SeriesDays int
	// MaxSeriesDays bounds the number of daily buckets one request may ask for.
	MaxSeriesDays int
	PageSize      int
	MaxPageSize   int
}

// LeaderboardEntry is one ranked event with its team display metadata.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	analytics.EventRollup
	Fixture *teams.Fixture `json:"fixture,omitempty"`
}

// MarginReport is the estimated profit of a view.
type MarginReport struct {
	Model      analytics.CostModel        `json:"model"`
	Total      analytics.Margin           `json:"total"`
	ByPlatform []analytics.PlatformMargin `json:"by_platform"`
	ByEvent    []analytics.EventMargin    `json:"by_event"`
}

// HeatmapReport is the weekday × hour activity grid of a view.
type HeatmapReport struct {
	Timezone string               `json:"timezone"`
	Cells    []analytics.HeatCell `json:"cells"`
	Peak     *analytics.HeatCell  `json:"peak,omitempty"`
}

// SalesQuery selects a page of a view's sales.
type SalesQuery struct {
	Filter   analytics.Filter
	Sort     []analytics.SortKey
	Page     int
	PageSize int
}

// AnalyticsService computes dashboard outputs from the current snapshot of
// a view. Every computation reads one snapshot, so all outputs of a response
// agree with each other.
type AnalyticsService struct {
	snapshots *SnapshotService
	cfg       AnalyticsConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyticsService creates an AnalyticsService over snapshots.
func NewAnalyticsService(snapshots *SnapshotService, cfg AnalyticsConfig, logger *slog.Logger) *AnalyticsService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Rules.WindowDays <= 0 {
		cfg.Rules = analytics.DefaultRiskRules()
	}
	if cfg.CostModel.Platforms == nil {
		cfg.CostModel = analytics.DefaultCostModel()
	}
	if cfg.SeriesDays <= 0 {
		cfg.SeriesDays = 30
	}
	if cfg.MaxSeriesDays <= 0 {
		cfg.MaxSeriesDays = 366
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = cfg.PageSize
	}
	return &AnalyticsService{
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "analytics_service")),
		now:       time.Now,
	}
}

// Location returns the dashboard time zone.
func (s *AnalyticsService) Location() *time.Location { return s.cfg.Location }

// State returns the current state of a view, loading it on first use.
func (s *AnalyticsService) State(ctx context.Context, view string) (domain.ViewState, error) {
	return s.snapshots.Get(ctx, view)
}

// sales returns the valid sales of st, logging any invalid ones.
func (s *AnalyticsService) sales(st domain.ViewState) []domain.Sale {
	if st.Snapshot == nil {
		return []domain.Sale{}
	}
	valid, invalid := analytics.Partition(st.Snapshot.Sales)
	if invalid > 0 {
		s.logger.Warn("analytics_service: invalid sales excluded",
			slog.String("view", st.View.Name),
			slog.Int("count", invalid),
		)
	}
	return valid
}

func events(st domain.ViewState) []domain.Event {
	if st.Snapshot == nil {
		return []domain.Event{}
	}
	return st.Snapshot.Events
}

// Summary computes the headline numbers of a view.
func (s *AnalyticsService) Summary(st domain.ViewState) analytics.Summary {
	return analytics.Summarize(s.sales(st), s.now(), s.cfg.Rules, s.cfg.CostModel)
}

// Series buckets revenue by local calendar day over [from, to]. Missing
// bounds default to the trailing SeriesDays ending today. A range ending
// before it starts, or spanning more than MaxSeriesDays, is
// domain.ErrInvalidRange.
func (s *AnalyticsService) Series(st domain.ViewState, from, to *time.Time) ([]analytics.DayBucket, error) {
	end := s.now().In(s.cfg.Location)
	if to != nil {
		end = to.In(s.cfg.Location)
	}
	start := end.AddDate(0, 0, -(s.cfg.SeriesDays - 1))
	if from != nil {
		start = from.In(s.cfg.Location)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: to is before from", domain.ErrInvalidRange)
	}
	if days := analytics.SpanDays(start, end, s.cfg.Location); days > s.cfg.MaxSeriesDays {
		return nil, fmt.Errorf("%w: %d days exceeds the %d day limit", domain.ErrInvalidRange, days, s.cfg.MaxSeriesDays)
	}
	return analytics.BucketByDay(s.sales(st), start, end, s.cfg.Location), nil
}

// Leaderboard ranks events. Unattached sales appear as their own entry.
func (s *AnalyticsService) Leaderboard(st domain.ViewState, by analytics.RankBy, limit int) []LeaderboardEntry {
	ranked := analytics.RankEvents(analytics.RollupByEvent(s.sales(st)), by, limit)
	out := make([]LeaderboardEntry, 0, len(ranked))
	for i, r := range ranked {
		e := LeaderboardEntry{Rank: i + 1, EventRollup: r}
		if r.EventID != analytics.UnattachedKey && r.EventName != "" {
			f := teams.LookupFixture(r.EventName)
			e.Fixture = &f
		}
		out = append(out, e)
	}
	return out
}

// Platforms splits a view by marketplace.
func (s *AnalyticsService) Platforms(st domain.ViewState) []analytics.PlatformSplit {
	return analytics.SplitByPlatform(s.sales(st))
}

// Risk scores every event of a view and keeps those at or above floor.
func (s *AnalyticsService) Risk(st domain.ViewState, floor analytics.RiskLevel) []analytics.EventRisk {
	risks := analytics.ScoreRisk(s.sales(st), events(st), s.now(), s.cfg.Rules)
	if floor == "" {
		return risks
	}
	return analytics.Flagged(risks, floor)
}

// Velocity measures the selling pace of every event of a view.
func (s *AnalyticsService) Velocity(st domain.ViewState) []analytics.EventVelocity {
	return analytics.VelocityByEvent(s.sales(st), s.now(), s.cfg.Rules)
}

// Margin estimates profit under the configured cost model.
func (s *AnalyticsService) Margin(st domain.ViewState) MarginReport {
	sales := s.sales(st)
	return MarginReport{
		Model:      s.cfg.CostModel,
		Total:      analytics.EstimateMargin(sales, s.cfg.CostModel),
		ByPlatform: analytics.MarginByPlatform(sales, s.cfg.CostModel),
		ByEvent:    analytics.MarginByEvent(sales, s.cfg.CostModel),
	}
}

// Heatmap buckets a view by local weekday and hour.
func (s *AnalyticsService) Heatmap(st domain.ViewState) HeatmapReport {
	cells := analytics.Heatmap(s.sales(st), s.cfg.Location)
	r := HeatmapReport{Timezone: s.cfg.Location.String(), Cells: cells}
	if peak, ok := analytics.Peak(cells); ok {
		r.Peak = &peak
	}
	return r
}

// Select filters and sorts a view's sales without paginating. Exports use
// it directly.
func (s *AnalyticsService) Select(st domain.ViewState, f analytics.Filter, keys []analytics.SortKey) []domain.Sale {
	if len(keys) == 0 {
		keys = []analytics.SortKey{{Field: analytics.SortSoldAt, Desc: true}}
	}
	return analytics.SortSales(analytics.FilterSales(s.sales(st), f), keys)
}

// Sales returns one page of a view's filtered, sorted sales. Page sizes
// above MaxPageSize are clamped.
func (s *AnalyticsService) Sales(st domain.ViewState, q SalesQuery) analytics.Page[domain.Sale] {
	size := q.PageSize
	switch {
	case size <= 0:
		size = s.cfg.PageSize
	case size > s.cfg.MaxPageSize:
		size = s.cfg.MaxPageSize
	}
	return analytics.Paginate(s.Select(st, q.Filter, q.Sort), q.Page, size)
}
