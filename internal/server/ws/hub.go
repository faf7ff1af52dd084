// Package ws pushes dashboard updates to browsers over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/resaledash/internal/domain"
	"github.com/alanyoungcy/resaledash/internal/server/middleware"
)

// channelTypes maps each relayed bus channel to the frame type clients see.
var channelTypes = map[string]string{
	domain.ChannelSnapshot: "snapshot",
	domain.ChannelHealth:   "health",
	domain.ChannelAlerts:   "alert",
}

// ViewSource reports the current state of every view.
type ViewSource interface {
	Views() []domain.View
	Peek(name string) (domain.ViewState, error)
}

// Message is the JSON text frame sent to clients.
type Message struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type viewStatus struct {
	View      string            `json:"view"`
	Title     string            `json:"title"`
	Status    domain.ViewStatus `json:"status"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

// Config carries the process mode reported to clients and the origin policy.
type Config struct {
	Mode           string
	AllowedOrigins []string
	StartedAt      time.Time
}

// Hub fans bus messages out to the sessions subscribed to their channel.
type Hub struct {
	bus       domain.SignalBus
	views     ViewSource
	upgrader  websocket.Upgrader
	mode      string
	startedAt time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// NewHub creates a hub relaying bus. A nil views gives an empty status frame.
func NewHub(bus domain.SignalBus, views ViewSource, cfg Config, logger *slog.Logger) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	origins := cfg.AllowedOrigins
	return &Hub{
		bus:   bus,
		views: views,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origins, origin)
			},
		},
		mode:      mode,
		startedAt: startedAt,
		logger:    logger.With(slog.String("component", "ws_hub")),
		sessions:  make(map[*session]struct{}),
	}
}

// Run relays every channel until ctx is cancelled, then closes all sessions.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for ch := range channelTypes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.relay(ctx, ch)
		}()
	}
	<-ctx.Done()
	wg.Wait()

	h.mu.Lock()
	h.closed = true
	for s := range h.sessions {
		delete(h.sessions, s)
		close(s.send)
	}
	h.mu.Unlock()
	return nil
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) join(s *session) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("total_clients", n))
	return true
}

func (h *Hub) leave(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
		close(s.send)
	}
	n := len(h.sessions)
	h.mu.Unlock()
	if ok {
		h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))
	}
}

// fanOut queues frame on every session subscribed to channel. A session
// with a full buffer misses the frame.
func (h *Hub) fanOut(channel string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		if !s.wants(channel) {
			continue
		}
		select {
		case s.send <- frame:
		default:
			h.logger.Warn("ws: dropping message for slow client", slog.String("channel", channel))
		}
	}
}

func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			frame, err := frameOf(channel, data)
			if err != nil {
				h.logger.Warn("ws: dropping malformed bus message",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			h.fanOut(channel, frame)
		}
	}
}

// frameOf wraps a bus payload in a Message. Payloads that are not JSON are
// sent as a JSON string.
func frameOf(channel string, payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return nil, err
		}
		payload = quoted
	}
	return json.Marshal(Message{Type: channelTypes[channel], Channel: channel, Payload: payload})
}

// HandleWS upgrades the request, subscribes the session to every relayed
// channel and queues the dashboard_status frame.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	s := newSession(h, conn)
	if status, err := h.statusFrame(); err != nil {
		h.logger.Warn("ws: status frame failed", slog.String("error", err.Error()))
	} else {
		s.send <- status
	}
	if !h.join(s) {
		conn.Close()
		return
	}
	go s.writeLoop()
	go s.readLoop()
}

func (h *Hub) statusFrame() ([]byte, error) {
	views := []viewStatus{}
	if h.views != nil {
		for _, v := range h.views.Views() {
			vs := viewStatus{View: v.Name, Title: v.Title, Status: domain.ViewStatusLoading}
			if st, err := h.views.Peek(v.Name); err == nil {
				vs.Status = st.Status
				if !st.UpdatedAt.IsZero() {
					at := st.UpdatedAt
					vs.UpdatedAt = &at
				}
			}
			views = append(views, vs)
		}
	}
	payload, err := json.Marshal(map[string]any{
		"mode":           h.mode,
		"uptime_seconds": max(0, int64(time.Since(h.startedAt).Seconds())),
		"views":          views,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: "dashboard_status", Payload: payload})
}
