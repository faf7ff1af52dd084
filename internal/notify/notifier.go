// Package notify delivers operator alerts (high-risk events, service
// errors, finished imports) to Telegram and Discord. Alerts are filtered by
// event type so operators receive only what they subscribed to.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Event types accepted in notify.events.
const (
	EventRiskHigh         = "risk_high"
	EventServiceError     = "service_error"
	EventImportCompleted  = "import_completed"
	EventArchiveCompleted = "archive_completed"
)

// Level controls how a message is highlighted.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Message is one alert.
type Message struct {
	Event string
	Level Level
	Title string
	Body  string
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans a message out to every Sender. Notify drops messages whose
// event type is not in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over senders, allowing the given events.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether the notifier would deliver an event of this type.
func (n *Notifier) Enabled(event string) bool {
	if n == nil || len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers msg to every sender when its event type is allowed. One
// failing sender does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if !n.Enabled(msg.Event) {
		if n != nil {
			n.logger.DebugContext(ctx, "notifier: event filtered out", slog.String("event", msg.Event))
		}
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// postJSON sends payload and treats any non-2xx response as an error.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
