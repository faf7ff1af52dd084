package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/resaledash/internal/service"
)

// Exporter is the archive side of service.ExportService.
type Exporter interface {
	ArchiveAll(ctx context.Context) ([]service.ArchiveResult, error)
	Prune(ctx context.Context, retentionDays int) (int, error)
}

// Archiver writes a CSV export of every view to object storage on a cron
// schedule and prunes exports past retention.
type Archiver struct {
	exports       Exporter
	retentionDays int
	loc           *time.Location
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver. The cron schedule is evaluated in loc.
func NewArchiver(exports Exporter, retentionDays int, loc *time.Location, logger *slog.Logger) *Archiver {
	if loc == nil {
		loc = time.UTC
	}
	return &Archiver{
		exports:       exports,
		retentionDays: retentionDays,
		loc:           loc,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           time.Now,
	}
}

// Run executes a single archive run. Pruning runs even when some views
// failed to archive.
func (a *Archiver) Run(ctx context.Context) error {
	start := a.now()
	a.logger.InfoContext(ctx, "archiver: run started", slog.Int("retention_days", a.retentionDays))

	results, archiveErr := a.exports.ArchiveAll(ctx)
	rows := 0
	for _, r := range results {
		rows += r.Rows
	}

	pruned, pruneErr := a.exports.Prune(ctx, a.retentionDays)
	if pruneErr != nil {
		a.logger.ErrorContext(ctx, "archiver: prune failed", slog.String("error", pruneErr.Error()))
	}

	a.logger.InfoContext(ctx, "archiver: run complete",
		slog.Int("views", len(results)),
		slog.Int("rows", rows),
		slog.Int("pruned", pruned),
		slog.Duration("took", a.now().Sub(start)),
	)
	if archiveErr != nil {
		return fmt.Errorf("archiver: %w", archiveErr)
	}
	if pruneErr != nil {
		return fmt.Errorf("archiver: %w", pruneErr)
	}
	return nil
}

// RunCron runs the archiver on a 5-field cron schedule until ctx is
// cancelled, e.g. "30 2 * * *" for 02:30 every night.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	if err := ValidateCron(cronExpr); err != nil {
		return fmt.Errorf("archiver: cron %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver: cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, a.now().In(a.loc))
		if err != nil {
			return fmt.Errorf("archiver: %w", err)
		}
		wait := time.Until(next)
		a.logger.DebugContext(ctx, "archiver: waiting for next run",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver: cron stopped")
			return nil
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archiver: run failed", slog.String("error", err.Error()))
			}
		}
	}
}
