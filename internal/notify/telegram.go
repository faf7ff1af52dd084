package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"
)

const telegramAPI = "https://api.telegram.org"

var levelEmoji = map[Level]string{
	LevelInfo:  "ℹ️",
	LevelWarn:  "⚠️",
	LevelError: "🛑",
}

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts msg with sendMessage in HTML mode. Event and team names may
// contain Markdown control characters, so text is HTML-escaped instead.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("%s <b>%s</b>\n%s",
		levelEmoji[msg.Level], html.EscapeString(msg.Title), html.EscapeString(msg.Body))

	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if err := postJSON(ctx, t.client, fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token), payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
