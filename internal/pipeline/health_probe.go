package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
)

// ErrDegraded marks a check failure that should be reported as warn rather
// than error.
var ErrDegraded = errors.New("degraded")

// Check probes one dependency.
type Check struct {
	Service string
	Probe   func(ctx context.Context) error
}

// Reporter records a probe outcome. service.HealthService implements it.
type Reporter interface {
	Report(ctx context.Context, service string, status domain.HealthStatus, detail string) error
}

// HealthProbe runs every check on an interval and reports the result.
type HealthProbe struct {
	checks   []Check
	reporter Reporter
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHealthProbe creates a HealthProbe. Each check gets at most timeout.
func NewHealthProbe(checks []Check, reporter Reporter, interval, timeout time.Duration, logger *slog.Logger) *HealthProbe {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 || timeout > interval {
		timeout = min(5*time.Second, interval)
	}
	return &HealthProbe{
		checks:   checks,
		reporter: reporter,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "health_probe")),
	}
}

// RunOnce probes every dependency once.
func (p *HealthProbe) RunOnce(ctx context.Context) {
	for _, c := range p.checks {
		status, detail := p.probe(ctx, c)
		if err := p.reporter.Report(ctx, c.Service, status, detail); err != nil {
			// The health store itself may be what is down.
			p.logger.WarnContext(ctx, "health_probe: report failed",
				slog.String("service", c.Service),
				slog.String("status", string(status)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *HealthProbe) probe(ctx context.Context, c Check) (domain.HealthStatus, string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := c.Probe(ctx)
	took := time.Since(start).Round(time.Millisecond)
	switch {
	case err == nil:
		return domain.HealthOK, "ok in " + took.String()
	case errors.Is(err, ErrDegraded):
		return domain.HealthWarn, err.Error()
	default:
		return domain.HealthError, err.Error()
	}
}

// Run probes immediately and then every interval until ctx is cancelled.
func (p *HealthProbe) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "health_probe: started",
		slog.Int("checks", len(p.checks)),
		slog.Duration("interval", p.interval),
	)
	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}
