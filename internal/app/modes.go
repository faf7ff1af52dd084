package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/feed"
	"github.com/alanyoungcy/resaledash/internal/pipeline"
	"github.com/alanyoungcy/resaledash/internal/server"
	"github.com/alanyoungcy/resaledash/internal/server/handler"
	"github.com/alanyoungcy/resaledash/internal/server/ws"
)

// Operating modes.
const (
	// ModeServe runs the HTTP API and keeps snapshots current from ch:changes.
	ModeServe = "serve"
	// ModeWorker listens to the store, raises alerts and runs the pipeline.
	ModeWorker = "worker"
	// ModeFull runs both in one process.
	ModeFull = "full"
)

const (
	shutdownTimeout = 10 * time.Second
	probeTimeout    = 5 * time.Second
)

// ServeMode starts the HTTP server, the WebSocket hub, the snapshot refresh
// loop and the change feeder.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "app: starting serve mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startSnapshots(ctx, g, deps, svc)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// WorkerMode starts the store listener, the snapshot refresh loop, risk
// alerting and the pipeline.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "app: starting worker mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startSnapshots(ctx, g, deps, svc)
	a.startWorker(ctx, g, deps, svc)
	return g.Wait()
}

// FullMode runs serve and worker together in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "app: starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startSnapshots(ctx, g, deps, svc)
	a.startWorker(ctx, g, deps, svc)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// startSnapshots runs the periodic refresh and the debounced change feeder
// that re-aggregates whenever ch:changes reports a relevant write.
func (a *App) startSnapshots(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	g.Go(func() error {
		err := svc.snapshots.Run(ctx, a.cfg.Analytics.RefreshInterval.Duration)
		svc.snapshots.Wait()
		return err
	})

	feeder := feed.NewChangeFeeder(deps.SignalBus, svc.snapshots, a.cfg.Realtime.Debounce.Duration, a.logger)
	g.Go(func() error {
		return feeder.Run(ctx)
	})
}

func (a *App) startWorker(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	svc.snapshots.OnUpdate(svc.alerts.Observe)
	g.Go(func() error {
		return svc.alerts.Run(ctx)
	})

	if a.cfg.Realtime.Enabled {
		listener := feed.NewPGListener(deps.Postgres.Pool(), a.cfg.Realtime.Channel, deps.SignalBus, svc.health, a.logger)
		g.Go(func() error {
			return listener.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "app: realtime listener disabled, relying on refresh interval and webhook")
	}

	if !a.cfg.Pipeline.Enabled {
		return
	}

	var archiver *pipeline.Archiver
	if a.cfg.Pipeline.ArchiveEnabled {
		if deps.ExportArchive == nil {
			a.logger.WarnContext(ctx, "app: archive enabled but object storage unavailable")
		} else {
			archiver = pipeline.NewArchiver(svc.exports, a.cfg.Pipeline.ArchiveRetentionDays, a.cfg.Analytics.Location(), a.logger)
		}
	}
	probe := pipeline.NewHealthProbe(a.probeChecks(deps, svc), svc.health, a.cfg.Pipeline.HealthInterval.Duration, probeTimeout, a.logger)
	orch := pipeline.NewOrchestrator(archiver, a.cfg.Pipeline.ArchiveCron, probe, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// probeChecks lists the dependencies the health probe reports on.
func (a *App) probeChecks(deps *Dependencies, svc *services) []pipeline.Check {
	checks := []pipeline.Check{
		{Service: "database", Probe: deps.Postgres.Ping},
		{Service: "cache", Probe: deps.Redis.Ping},
		{Service: "snapshots", Probe: func(context.Context) error {
			return viewsHealthy(svc.snapshots.Views(), svc.snapshots.Peek)
		}},
	}
	if deps.S3 != nil {
		checks = append(checks, pipeline.Check{Service: "storage", Probe: deps.S3.Health})
	}
	return checks
}

// viewsHealthy reports ErrDegraded listing every stale or failed view.
func viewsHealthy(views []domain.View, peek func(string) (domain.ViewState, error)) error {
	var bad []string
	for _, v := range views {
		st, err := peek(v.Name)
		if err != nil {
			return err
		}
		switch st.Status {
		case domain.ViewStatusStale, domain.ViewStatusError:
			bad = append(bad, v.Name+" "+string(st.Status))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrDegraded, strings.Join(bad, ", "))
	}
	return nil
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "app: http server disabled")
		return
	}

	hub := ws.NewHub(deps.SignalBus, svc.snapshots, ws.Config{
		Mode:           a.cfg.Mode,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		StartedAt:      time.Now().UTC(),
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(svc.health, a.cfg.Mode, a.logger),
		Views:    handler.NewViewHandler(svc.snapshots, svc.analytics, a.logger),
		Sales:    handler.NewSaleHandler(svc.sales, a.cfg.Server.MaxUploadMB, a.logger),
		Exports:  handler.NewExportHandler(svc.snapshots, svc.exports, svc.analytics.Location(), a.logger),
		Catalog:  handler.NewCatalogHandler(deps.EventStore, deps.CategoryStore, a.logger),
		Realtime: handler.NewRealtimeHandler(a.cfg.Realtime.WebhookSecret, a.cfg.Realtime.WebhookTolerance.Duration, deps.SignalBus, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}
