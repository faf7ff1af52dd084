package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/resaledash/internal/csvio"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/service"
)

// SaleWriter records sales.
type SaleWriter interface {
	Create(ctx context.Context, n domain.NewSale) (string, error)
	Import(ctx context.Context, r io.Reader) (service.ImportResult, error)
}

// SaleHandler serves the write endpoints.
type SaleHandler struct {
	sales     SaleWriter
	maxUpload int64
	logger    *slog.Logger
}

// NewSaleHandler creates a SaleHandler. Import bodies above maxUploadMB are
// rejected.
func NewSaleHandler(sales SaleWriter, maxUploadMB int, logger *slog.Logger) *SaleHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &SaleHandler{sales: sales, maxUpload: int64(maxUploadMB) << 20, logger: logger}
}

type createSaleRequest struct {
	EventID     string          `json:"event_id"`
	Section     string          `json:"section"`
	Quantity    int             `json:"quantity"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	Platform    string          `json:"platform"`
	SoldAt      *time.Time      `json:"sold_at"`
	Notes       string          `json:"notes"`
}

// CreateSale records one sale.
// POST /api/sales
func (h *SaleHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	platform, _ := domain.ParsePlatform(req.Platform)
	n := domain.NewSale{
		EventID:     req.EventID,
		Section:     req.Section,
		Quantity:    req.Quantity,
		TicketPrice: req.TicketPrice,
		Platform:    platform,
		Notes:       req.Notes,
	}
	if req.SoldAt != nil {
		n.SoldAt = *req.SoldAt
	}

	id, err := h.sales.Create(r.Context(), n)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	case errors.Is(err, domain.ErrInvalidSale):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	default:
		h.logger.ErrorContext(r.Context(), "handler: create sale failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create sale")
	}
}

// ImportSales bulk-imports a CSV sheet, sent either as the "file" part of a
// multipart form or as the raw request body.
// POST /api/sales/import
func (h *SaleHandler) ImportSales(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	var body io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			if tooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			writeError(w, http.StatusBadRequest, "missing file part: "+err.Error())
			return
		}
		defer file.Close()
		body = file
	}

	res, err := h.sales.Import(r.Context(), body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "another import is running")
	case tooLarge(err):
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
	case errors.Is(err, domain.ErrEmptyImport),
		errors.Is(err, csvio.ErrEmptyFile),
		errors.Is(err, csvio.ErrMissingHeader),
		errors.Is(err, csvio.ErrMissingColumn):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: import failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "import failed")
	}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
