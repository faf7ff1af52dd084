package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/teams"
)

// EventLister lists events.
type EventLister interface {
	ListAll(ctx context.Context) ([]domain.Event, error)
}

// CategoryLister lists categories.
type CategoryLister interface {
	ListAll(ctx context.Context) ([]domain.Category, error)
}

// CatalogHandler serves the reference data the dashboard forms need.
type CatalogHandler struct {
	events     EventLister
	categories CategoryLister
	logger     *slog.Logger
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(events EventLister, categories CategoryLister, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{events: events, categories: categories, logger: logger}
}

// ListEvents returns every event.
// GET /api/events
func (h *CatalogHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// ListCategories returns every category.
// GET /api/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories.ListAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list categories failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// Teams resolves display metadata for a team or a "Home vs Away" fixture.
// The lookup is best-effort; unknown names get a derived code.
// GET /api/teams?name=England%20vs%20France
func (h *CatalogHandler) Teams(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	writeJSON(w, http.StatusOK, teams.LookupFixture(name))
}
