// Package server exposes the dashboard over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/server/handler"
	"github.com/alanyoungcy/resaledash/internal/server/middleware"
	"github.com/alanyoungcy/resaledash/internal/server/ws"
)

// Paths that bypass API key authentication.
const (
	healthPath  = "/api/health"
	webhookPath = "/api/realtime/webhook"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter enables per-client rate limiting when non-nil.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered.
type Handlers struct {
	Health   *handler.HealthHandler
	Views    *handler.ViewHandler
	Sales    *handler.SaleHandler
	Exports  *handler.ExportHandler
	Catalog  *handler.CatalogHandler
	Realtime *handler.RealtimeHandler
}

// Server is the dashboard's HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newHandler(cfg, handlers, wsHub, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

func newHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if h := handlers.Health; h != nil {
		mux.HandleFunc("GET "+healthPath, h.HealthCheck)
		mux.HandleFunc("GET /api/status", h.Status)
	}

	if h := handlers.Views; h != nil {
		mux.HandleFunc("GET /api/views", h.ListViews)
		mux.HandleFunc("GET /api/views/{view}", h.GetView)
		mux.HandleFunc("POST /api/views/{view}/refresh", h.RefreshView)
		mux.HandleFunc("GET /api/views/{view}/summary", h.Summary)
		mux.HandleFunc("GET /api/views/{view}/series", h.Series)
		mux.HandleFunc("GET /api/views/{view}/events", h.Events)
		mux.HandleFunc("GET /api/views/{view}/platforms", h.Platforms)
		mux.HandleFunc("GET /api/views/{view}/risk", h.Risk)
		mux.HandleFunc("GET /api/views/{view}/velocity", h.Velocity)
		mux.HandleFunc("GET /api/views/{view}/margin", h.Margin)
		mux.HandleFunc("GET /api/views/{view}/heatmap", h.Heatmap)
		mux.HandleFunc("GET /api/views/{view}/sales", h.Sales)
	}

	if h := handlers.Exports; h != nil {
		mux.HandleFunc("GET /api/views/{view}/export", h.Export)
		mux.HandleFunc("POST /api/views/{view}/archive", h.Archive)
		mux.HandleFunc("GET /api/exports", h.ListExports)
		mux.HandleFunc("GET /api/exports/file", h.Download)
	}

	if h := handlers.Sales; h != nil {
		mux.HandleFunc("POST /api/sales", h.CreateSale)
		mux.HandleFunc("POST /api/sales/import", h.ImportSales)
	}

	if h := handlers.Catalog; h != nil {
		mux.HandleFunc("GET /api/events", h.ListEvents)
		mux.HandleFunc("GET /api/categories", h.ListCategories)
		mux.HandleFunc("GET /api/teams", h.Teams)
	}

	if h := handlers.Realtime; h != nil {
		mux.HandleFunc("POST "+webhookPath, h.Webhook)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost first: CORS answers preflights before auth, logging sees
	// every request including rejected ones.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, healthPath, webhookPath)(h)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
