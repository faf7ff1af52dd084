package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name string
	err  error
	got  []Message
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventRiskHigh, " "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), Message{Event: EventImportCompleted, Title: "x"}))
	require.NoError(t, n.Notify(context.Background(), Message{Event: EventRiskHigh, Title: "y"}))

	require.Len(t, s.got, 1)
	assert.Equal(t, "y", s.got[0].Title)
	assert.True(t, n.Enabled(EventRiskHigh))
	assert.False(t, n.Enabled(EventServiceError))
}

func TestNotifierEmptyEventsAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	require.NoError(t, n.Notify(context.Background(), Message{Event: "anything"}))
	assert.Len(t, s.got, 1)
}

func TestNotifierWithoutSendersIsDisabled(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.False(t, n.Enabled(EventRiskHigh))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled(EventRiskHigh))
	assert.NoError(t, nilNotifier.Notify(context.Background(), Message{Event: EventRiskHigh}))
}

func TestNotifierKeepsDeliveringAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), Message{Event: EventServiceError})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.got, 1)
}

func TestTelegramSenderEscapesHTML(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), Message{
		Level: LevelWarn, Title: "Brighton & Hove <Albion>", Body: "units down 60%",
	}))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Contains(t, got["text"], "<b>Brighton &amp; Hove &lt;Albion&gt;</b>")
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}

func TestDiscordSenderEmbed(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	d.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	require.NoError(t, d.Send(context.Background(), Message{
		Event: EventRiskHigh, Level: LevelError, Title: "High risk", Body: "Chelsea vs Arsenal",
	}))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, 0xEF4444, got.Embeds[0].Color)
	assert.Equal(t, EventRiskHigh, got.Embeds[0].Footer.Text)
	assert.Equal(t, "2025-06-01T09:00:00Z", got.Embeds[0].Timestamp)
}
