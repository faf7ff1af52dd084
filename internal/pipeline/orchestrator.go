// Package pipeline runs the scheduled background jobs of the worker:
// nightly export archiving and dependency health probing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the pipeline goroutines. Either job may be nil.
type Orchestrator struct {
	archiver    *Archiver
	archiveCron string
	probe       *HealthProbe
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(archiver *Archiver, archiveCron string, probe *HealthProbe, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		archiver:    archiver,
		archiveCron: archiveCron,
		probe:       probe,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every configured job under an errgroup. If one returns an
// error the shared context is cancelled and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator: starting",
		slog.Bool("archiver", o.archiver != nil),
		slog.String("archive_cron", o.archiveCron),
		slog.Bool("health_probe", o.probe != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	if o.archiver != nil {
		g.Go(func() error {
			if err := o.archiver.RunCron(ctx, o.archiveCron); err != nil {
				return fmt.Errorf("archiver: %w", err)
			}
			return nil
		})
	}
	if o.probe != nil {
		g.Go(func() error {
			if err := o.probe.Run(ctx); err != nil {
				return fmt.Errorf("health probe: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator: stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator: stopped cleanly")
	return nil
}
