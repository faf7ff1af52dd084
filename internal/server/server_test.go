package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/resaledash/internal/server/handler"
	"github.com/alanyoungcy/resaledash/internal/server/middleware"
)

type denyAll struct{ calls int }

func (d *denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.calls++
	return false, nil
}

func testServer(cfg Config) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, Handlers{
		Health:   handler.NewHealthHandler(nil, "serve", logger),
		Realtime: handler.NewRealtimeHandler("", time.Minute, nil, logger),
	}, nil, logger).Handler()
}

func do(h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(""))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutesAndAuth(t *testing.T) {
	h := testServer(Config{APIKey: "k"})

	rec := do(h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/status", map[string]string{"X-API-Key": "k"}).Code)

	// The webhook authenticates by signature, not API key; disabled here.
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/realtime/webhook", nil).Code)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/views", map[string]string{"X-API-Key": "k"}).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPost, "/api/health", nil).Code)
}

func TestPreflightSkipsAuth(t *testing.T) {
	h := testServer(Config{APIKey: "k", CORSOrigins: []string{"https://dash.example.com"}})
	rec := do(h, http.MethodOptions, "/api/views", map[string]string{"Origin": "https://dash.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitWiredWhenConfigured(t *testing.T) {
	lim := &denyAll{}
	h := testServer(Config{Limiter: lim, RateLimit: 5, RateWindow: time.Second})
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, 1, lim.calls)

	h = testServer(Config{Limiter: lim})
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", nil).Code)
}
