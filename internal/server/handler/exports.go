package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/service"
)

// Exporter renders and archives CSV exports.
type Exporter interface {
	Export(st domain.ViewState, f analytics.Filter, keys []analytics.SortKey) (service.ExportFile, error)
	Archive(ctx context.Context, view string) (service.ArchiveResult, error)
	List(ctx context.Context, view string) ([]domain.BlobInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ExportHandler serves CSV downloads and the export archive.
type ExportHandler struct {
	views   ViewSource
	exports Exporter
	loc     *time.Location
	logger  *slog.Logger
}

// NewExportHandler creates an ExportHandler. Dates in filters are read in loc.
func NewExportHandler(views ViewSource, exports Exporter, loc *time.Location, logger *slog.Logger) *ExportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportHandler{views: views, exports: exports, loc: loc, logger: logger}
}

// Export streams the filtered, sorted sales of a view as a CSV attachment.
// The view status travels in the X-View-Status header.
// GET /api/views/{view}/export?platform=FP&sort=sold_at:asc
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keys, err := parseSort(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := pathParam(r, "view")
	st, err := h.views.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownView) {
			writeError(w, http.StatusNotFound, "unknown view "+name)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "view is still loading")
		return
	}

	file, err := h.exports.Export(st, f, keys)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: export failed",
			slog.String("view", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to export view")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("X-View-Status", string(st.Status))
	w.Header().Set("X-Export-Rows", strconv.Itoa(file.Rows))
	w.WriteHeader(http.StatusOK)
	w.Write(file.Data)
}

// Archive stores a CSV of the whole view in the export archive.
// POST /api/views/{view}/archive
func (h *ExportHandler) Archive(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "view")
	res, err := h.exports.Archive(r.Context(), name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, res)
	case errors.Is(err, domain.ErrUnknownView):
		writeError(w, http.StatusNotFound, "unknown view "+name)
	case errors.Is(err, service.ErrArchiveUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: archive failed",
			slog.String("view", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to archive view")
	}
}

// ListExports lists archived exports, newest first.
// GET /api/exports?view=all
func (h *ExportHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.exports.List(r.Context(), r.URL.Query().Get("view"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, infos)
	case errors.Is(err, service.ErrArchiveUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: list exports failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list exports")
	}
}

// Download streams one archived export.
// GET /api/exports/file?path=exports/all/2025-06-01/all-sales-sales.csv
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	rc, err := h.exports.Open(r.Context(), p)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "export not found")
		return
	case errors.Is(err, service.ErrArchiveUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		h.logger.ErrorContext(r.Context(), "handler: open export failed",
			slog.String("path", p),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to open export")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: stream export interrupted", slog.String("error", err.Error()))
	}
}
