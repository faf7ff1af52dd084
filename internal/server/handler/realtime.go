package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/resaledash/internal/crypto"
	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/feed"
)

// RealtimeHandler accepts signed change notifications pushed by the hosted
// database platform and republishes them on ch:changes.
type RealtimeHandler struct {
	secret    string
	tolerance time.Duration
	bus       domain.SignalBus
	logger    *slog.Logger
	now       func() time.Time
}

// NewRealtimeHandler creates a RealtimeHandler. An empty secret disables the
// endpoint.
func NewRealtimeHandler(secret string, tolerance time.Duration, bus domain.SignalBus, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{secret: secret, tolerance: tolerance, bus: bus, logger: logger, now: time.Now}
}

// webhookPayload accepts both our own {table, op, id} shape and the hosted
// platform's database webhook shape {type, table, record, old_record}.
type webhookPayload struct {
	Table     string         `json:"table"`
	Op        string         `json:"op"`
	Type      string         `json:"type"`
	ID        any            `json:"id"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

func (p webhookPayload) change(at time.Time) (domain.ChangeEvent, error) {
	table := strings.TrimSpace(p.Table)
	if table == "" {
		return domain.ChangeEvent{}, errors.New("missing table")
	}
	op := p.Op
	if op == "" {
		op = p.Type
	}
	id := p.ID
	if id == nil && p.Record != nil {
		id = p.Record["id"]
	}
	if id == nil && p.OldRecord != nil {
		id = p.OldRecord["id"]
	}
	ev := domain.ChangeEvent{Table: table, Op: domain.ChangeOp(strings.ToUpper(op)), At: at}
	if id != nil {
		ev.ID = fmt.Sprint(id)
	}
	return ev, nil
}

// Webhook verifies and publishes one change notification.
// POST /api/realtime/webhook
func (h *RealtimeHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		writeError(w, http.StatusNotFound, "webhook disabled")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	now := h.now()
	if err := crypto.VerifyWebhook(h.secret, body, r.Header.Get(crypto.SignatureHeader), now, h.tolerance); err != nil {
		h.logger.WarnContext(r.Context(), "handler: webhook rejected",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusUnauthorized, domain.ErrInvalidSignature.Error())
		return
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	ev, err := p.change(now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if err := feed.Publish(r.Context(), h.bus, ev); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: webhook publish failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "failed to publish change")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"refresh":  ev.AffectsAnalytics(),
	})
}
