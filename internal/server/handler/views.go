package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/resaledash/internal/analytics"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/service"
)

// ViewSource owns the current snapshot of every view.
type ViewSource interface {
	Views() []domain.View
	Peek(name string) (domain.ViewState, error)
	Get(ctx context.Context, name string) (domain.ViewState, error)
	Refresh(ctx context.Context, name string) (domain.ViewState, error)
}

// Analytics computes dashboard outputs from a view state.
type Analytics interface {
	Location() *time.Location
	Summary(st domain.ViewState) analytics.Summary
	Series(st domain.ViewState, from, to *time.Time) ([]analytics.DayBucket, error)
	Leaderboard(st domain.ViewState, by analytics.RankBy, limit int) []service.LeaderboardEntry
	Platforms(st domain.ViewState) []analytics.PlatformSplit
	Risk(st domain.ViewState, floor analytics.RiskLevel) []analytics.EventRisk
	Velocity(st domain.ViewState) []analytics.EventVelocity
	Margin(st domain.ViewState) service.MarginReport
	Heatmap(st domain.ViewState) service.HeatmapReport
	Sales(st domain.ViewState, q service.SalesQuery) analytics.Page[domain.Sale]
}

// ViewHandler serves the per-view dashboard endpoints. Every response is an
// envelope carrying the view status; a stale or failed view still answers
// 200 with whatever data its last snapshot holds.
type ViewHandler struct {
	views     ViewSource
	analytics Analytics
	logger    *slog.Logger
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(views ViewSource, a Analytics, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{views: views, analytics: a, logger: logger}
}

type viewInfo struct {
	domain.View
	Status domain.ViewStatus `json:"status"`
}

// ListViews returns the configured views.
// GET /api/views
func (h *ViewHandler) ListViews(w http.ResponseWriter, r *http.Request) {
	out := []viewInfo{}
	for _, v := range h.views.Views() {
		info := viewInfo{View: v, Status: domain.ViewStatusLoading}
		if st, err := h.views.Peek(v.Name); err == nil {
			info.Status = st.Status
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// state resolves the {view} path parameter, writing the error response
// itself when it fails.
func (h *ViewHandler) state(w http.ResponseWriter, r *http.Request) (domain.ViewState, bool) {
	name := pathParam(r, "view")
	st, err := h.views.Get(r.Context(), name)
	switch {
	case err == nil:
		return st, true
	case errors.Is(err, domain.ErrUnknownView):
		writeError(w, http.StatusNotFound, "unknown view "+name)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "view is still loading")
	default:
		h.logger.ErrorContext(r.Context(), "handler: load view failed",
			slog.String("view", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load view")
	}
	return domain.ViewState{}, false
}

// GetView returns the view status and headline summary.
// GET /api/views/{view}
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Summary(st)))
}

// RefreshView re-fetches a view and waits for the result. It is the retry
// action for a stale or failed view.
// POST /api/views/{view}/refresh
func (h *ViewHandler) RefreshView(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "view")
	st, err := h.views.Refresh(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownView) {
			writeError(w, http.StatusNotFound, "unknown view "+name)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "refresh still running")
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Summary(st)))
}

// Summary returns the headline numbers.
// GET /api/views/{view}/summary
func (h *ViewHandler) Summary(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Summary(st)))
}

// Series returns daily revenue buckets.
// GET /api/views/{view}/series?from=2025-05-01&to=2025-05-31
func (h *ViewHandler) Series(w http.ResponseWriter, r *http.Request) {
	loc := h.analytics.Location()
	from, err := timeParam(r, "from", loc, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := timeParam(r, "to", loc, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	series, err := h.analytics.Series(st, from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, series))
}

// Events returns the event leaderboard.
// GET /api/views/{view}/events?by=revenue&limit=10
func (h *ViewHandler) Events(w http.ResponseWriter, r *http.Request) {
	by := analytics.RankBy(strings.ToLower(r.URL.Query().Get("by")))
	switch by {
	case "":
		by = analytics.RankByRevenue
	case analytics.RankByRevenue, analytics.RankByUnits, analytics.RankByOrders:
	default:
		writeError(w, http.StatusBadRequest, "by must be revenue, units or orders")
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Leaderboard(st, by, limit)))
}

// Platforms returns the marketplace split.
// GET /api/views/{view}/platforms
func (h *ViewHandler) Platforms(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Platforms(st)))
}

// Risk returns scored events, optionally only those at or above a level.
// GET /api/views/{view}/risk?level=medium
func (h *ViewHandler) Risk(w http.ResponseWriter, r *http.Request) {
	floor := analytics.RiskLevel(strings.ToLower(r.URL.Query().Get("level")))
	switch floor {
	case "", analytics.RiskHealthy, analytics.RiskWatch, analytics.RiskMedium, analytics.RiskHigh:
	default:
		writeError(w, http.StatusBadRequest, "level must be healthy, watch, medium or high")
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Risk(st, floor)))
}

// Velocity returns the selling pace of every event.
// GET /api/views/{view}/velocity
func (h *ViewHandler) Velocity(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Velocity(st)))
}

// Margin returns estimated profit under the configured cost model.
// GET /api/views/{view}/margin
func (h *ViewHandler) Margin(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Margin(st)))
}

// Heatmap returns the weekday × hour activity grid.
// GET /api/views/{view}/heatmap
func (h *ViewHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Heatmap(st)))
}

// Sales returns one page of filtered, sorted sales.
// GET /api/views/{view}/sales?platform=LFT&sort=price:desc&page=2&page_size=50
func (h *ViewHandler) Sales(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, h.analytics.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keys, err := parseSort(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size, err := intParam(r, "page_size", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, ok := h.state(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelopeOf(st, h.analytics.Sales(st, service.SalesQuery{
		Filter: f, Sort: keys, Page: page, PageSize: size,
	})))
}
