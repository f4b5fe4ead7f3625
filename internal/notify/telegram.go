package notify

import (
	"context"
	"fmt"
	"time"

	"solana-entry-gate/internal/upstream"
)

// DefaultTelegramURL is the Bot API base.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	http   *upstream.Client
	token  string
	chatID string
}

// NewTelegramSender creates a TelegramSender. An empty baseURL uses the public Bot API.
func NewTelegramSender(baseURL, token, chatID string) *TelegramSender {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	return &TelegramSender{
		http: upstream.New(upstream.Config{
			Service:    "telegram",
			BaseURL:    baseURL,
			Timeout:    10 * time.Second,
			RetryCount: 2,
			RPS:        1, // per-chat limit
			Burst:      3,
		}),
		token:  token,
		chatID: chatID,
	}
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts to sendMessage with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}

	var resp sendMessageResponse
	if err := t.http.Post(ctx, "send_message", "/bot"+t.token+"/sendMessage", payload, &resp); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram: %s", resp.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
