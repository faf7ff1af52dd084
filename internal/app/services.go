package app

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/config"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/ingest"
	"github.com/alanyoungcy/resaledash/internal/service"
)

// services are the domain services shared by every mode.
type services struct {
	health    *service.HealthService
	snapshots *service.SnapshotService
	analytics *service.AnalyticsService
	sales     *service.SaleService
	alerts    *service.AlertService
	exports   *service.ExportService
}

func buildServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *services {
	loc := cfg.Analytics.Location()

	health := service.NewHealthService(deps.HealthStore, deps.SignalBus, deps.Notifier, logger)
	adapter := ingest.NewAdapter(deps.SaleStore, deps.EventStore, deps.CategoryStore, cfg.Analytics.MaxScanRows, logger)
	snapshots := service.NewSnapshotService(
		adapter,
		deps.SnapshotCache,
		deps.SignalBus,
		viewsFromConfig(cfg.Views),
		service.SnapshotConfig{FetchTimeout: cfg.Analytics.FetchTimeout.Duration},
		logger,
	)
	an := service.NewAnalyticsService(snapshots, analyticsConfig(cfg.Analytics), logger)
	sales := service.NewSaleService(
		deps.SaleStore, deps.EventStore, deps.CategoryStore, deps.LockManager,
		health, deps.Notifier, snapshots, loc, logger,
	)
	alerts := service.NewAlertService(an, deps.Deduper, deps.SignalBus, deps.Notifier, cfg.Notify.AlertTTL.Duration, logger)
	exports := service.NewExportService(an, deps.ExportArchive, health, logger)

	return &services{
		health:    health,
		snapshots: snapshots,
		analytics: an,
		sales:     sales,
		alerts:    alerts,
		exports:   exports,
	}
}

// viewsFromConfig maps view presets to domain views. A missing title falls
// back to the name.
func viewsFromConfig(in []config.ViewConfig) []domain.View {
	out := make([]domain.View, 0, len(in))
	for _, v := range in {
		title := strings.TrimSpace(v.Title)
		if title == "" {
			title = v.Name
		}
		out = append(out, domain.View{
			Name:  v.Name,
			Title: title,
			Filter: domain.SaleFilter{
				CategoryKeyword: strings.TrimSpace(v.Category),
				EventIDs:        v.EventIDs,
				Days:            v.Days,
				Limit:           v.Limit,
			},
		})
	}
	return out
}

func analyticsConfig(c config.AnalyticsConfig) service.AnalyticsConfig {
	rules := analytics.DefaultRiskRules()
	if c.WindowDays > 0 {
		rules.WindowDays = c.WindowDays
	}
	if c.ImminentDays >= 0 {
		rules.ImminentDays = c.ImminentDays
	}
	return service.AnalyticsConfig{
		Rules:         rules,
		CostModel:     costModel(c.CostModel),
		Location:      c.Location(),
		SeriesDays:    c.SeriesDays,
		MaxSeriesDays: c.MaxSeriesDays,
		PageSize:      c.PageSize,
		MaxPageSize:   c.MaxPageSize,
	}
}

// costModel converts the configured assumptions. Platform keys are resolved
// like sheet values, so "LFT" and "LiveFootballTickets" name the same
// platform. An unset model falls back to the built-in one.
func costModel(c config.CostModelConfig) analytics.CostModel {
	if len(c.Platforms) == 0 && c.Default == (config.PlatformCostConfig{}) {
		return analytics.DefaultCostModel()
	}
	pc := func(p config.PlatformCostConfig) analytics.PlatformCost {
		return analytics.PlatformCost{
			CostFactor: decimal.NewFromFloat(p.CostFactor),
			FeeRate:    decimal.NewFromFloat(p.FeeRate),
		}
	}
	m := analytics.CostModel{
		Default:   pc(c.Default),
		Platforms: make(map[domain.Platform]analytics.PlatformCost, len(c.Platforms)),
	}
	for key, v := range c.Platforms {
		if p, ok := domain.ParsePlatform(key); ok {
			m.Platforms[p] = pc(v)
		}
	}
	return m
}
