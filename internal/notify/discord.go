package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Embed colours per level.
var levelColor = map[Level]int{
	LevelInfo:  0x3B82F6,
	LevelWarn:  0xF59E0B,
	LevelError: 0xEF4444,
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Send posts msg as a single embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       levelColor[msg.Level],
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	embed.Footer.Text = msg.Event

	payload := map[string]any{"embeds": []discordEmbed{embed}}
	if err := postJSON(ctx, d.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
