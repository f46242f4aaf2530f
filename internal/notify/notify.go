// Package notify delivers operational alerts to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends short operator-facing messages. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}

type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// New returns a Telegram notifier, or Nop when the bot token or chat is unset.
func New(token string, chatID int64, log *slog.Logger) (Notifier, error) {
	if strings.TrimSpace(token) == "" || chatID == 0 {
		return Nop{}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// NewWithEndpoint points the bot at a custom Bot API server.
func NewWithEndpoint(token, endpoint string, chatID int64, client *http.Client, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		t.log.ErrorContext(ctx, "send ops notification", "chat", t.chatID, "err", err)
	}
}
