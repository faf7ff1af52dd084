package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/csvio"
	"github.com/alanyoungcy/resaledash/internal/domain"
)

// ErrArchiveUnavailable is returned when no export archive is configured.
var ErrArchiveUnavailable = errors.New("export archive not configured")

// ExportArchive stores CSV exports. s3blob.ExportArchive implements it.
type ExportArchive interface {
	Store(ctx context.Context, view string, at time.Time, file string, data []byte) (string, error)
	List(ctx context.Context, view string) ([]domain.BlobInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// ExportFile is a rendered CSV export.
type ExportFile struct {
	Name string
	Rows int
	Data []byte
}

// ArchiveResult describes one archived export.
type ArchiveResult struct {
	View   string            `json:"view"`
	Status domain.ViewStatus `json:"status"`
	Path   string            `json:"path"`
	Rows   int               `json:"rows"`
	Bytes  int               `json:"bytes"`
}

// ExportService renders views as CSV and keeps archived copies.
type ExportService struct {
	analytics *AnalyticsService
	archive   ExportArchive
	health    *HealthService
	logger    *slog.Logger
	now       func() time.Time
}

// NewExportService creates an ExportService. archive and health may be nil.
func NewExportService(analytics *AnalyticsService, archive ExportArchive, health *HealthService, logger *slog.Logger) *ExportService {
	return &ExportService{
		analytics: analytics,
		archive:   archive,
		health:    health,
		logger:    logger.With(slog.String("component", "export_service")),
		now:       time.Now,
	}
}

// Export renders the filtered, sorted sales of a view state as CSV.
func (s *ExportService) Export(st domain.ViewState, f analytics.Filter, keys []analytics.SortKey) (ExportFile, error) {
	sales := s.analytics.Select(st, f, keys)
	var buf bytes.Buffer
	if err := csvio.WriteSales(&buf, sales, s.analytics.Location()); err != nil {
		return ExportFile{}, fmt.Errorf("export_service: render %s: %w", st.View.Name, err)
	}
	return ExportFile{
		Name: csvio.FileName(st.View.Title),
		Rows: len(sales),
		Data: buf.Bytes(),
	}, nil
}

// Archive exports the whole current snapshot of a view to the archive.
func (s *ExportService) Archive(ctx context.Context, view string) (ArchiveResult, error) {
	if s.archive == nil {
		return ArchiveResult{}, ErrArchiveUnavailable
	}
	st, err := s.analytics.State(ctx, view)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("export_service: archive %s: %w", view, err)
	}
	if st.Snapshot == nil {
		return ArchiveResult{}, fmt.Errorf("export_service: archive %s: no snapshot (%s)", view, st.Status)
	}

	file, err := s.Export(st, analytics.Filter{}, []analytics.SortKey{{Field: analytics.SortSoldAt}})
	if err != nil {
		return ArchiveResult{}, err
	}
	at := s.now().In(s.analytics.Location())
	path, err := s.archive.Store(ctx, view, at, file.Name, file.Data)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("export_service: archive %s: %w", view, err)
	}

	res := ArchiveResult{View: view, Status: st.Status, Path: path, Rows: file.Rows, Bytes: len(file.Data)}
	s.logger.InfoContext(ctx, "export_service: archived",
		slog.String("view", view),
		slog.String("path", path),
		slog.String("status", string(st.Status)),
		slog.Int("rows", res.Rows),
	)
	return res, nil
}

// ArchiveAll archives every configured view. A failing view does not stop
// the others; all failures are returned joined.
func (s *ExportService) ArchiveAll(ctx context.Context) ([]ArchiveResult, error) {
	var (
		results []ArchiveResult
		errs    []error
	)
	for _, v := range s.analytics.snapshots.Views() {
		res, err := s.Archive(ctx, v.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	err := errors.Join(errs...)
	s.record(ctx, len(results), err)
	return results, err
}

func (s *ExportService) record(ctx context.Context, archived int, err error) {
	if s.health == nil {
		return
	}
	status, detail := domain.HealthOK, fmt.Sprintf("%d views archived", archived)
	if err != nil {
		status, detail = domain.HealthError, err.Error()
	}
	if herr := s.health.Report(ctx, ServiceArchiver, status, detail); herr != nil {
		s.logger.WarnContext(ctx, "export_service: health report failed", slog.String("error", herr.Error()))
	}
}

// List returns archived exports of a view, newest first. An empty view
// lists all.
func (s *ExportService) List(ctx context.Context, view string) ([]domain.BlobInfo, error) {
	if s.archive == nil {
		return nil, ErrArchiveUnavailable
	}
	infos, err := s.archive.List(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("export_service: list: %w", err)
	}
	return infos, nil
}

// Open returns the body of an archived export.
func (s *ExportService) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if s.archive == nil {
		return nil, ErrArchiveUnavailable
	}
	rc, err := s.archive.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("export_service: open %s: %w", path, err)
	}
	return rc, nil
}

// Prune deletes archives older than retentionDays. Zero keeps everything.
func (s *ExportService) Prune(ctx context.Context, retentionDays int) (int, error) {
	if s.archive == nil {
		return 0, ErrArchiveUnavailable
	}
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().In(s.analytics.Location()).AddDate(0, 0, -retentionDays)
	n, err := s.archive.Prune(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("export_service: prune: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "export_service: pruned archives",
			slog.Int("removed", n),
			slog.Int("retention_days", retentionDays),
		)
	}
	return n, nil
}
