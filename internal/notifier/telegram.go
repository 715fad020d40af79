// Package notifier delivers alert and report messages over the Telegram
// Bot API.
package notifier

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Telegram sends Markdown messages through a shared bot client.
type Telegram struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	MaxRetries int
}

// NewTelegram wraps an authorized bot client.
func NewTelegram(bot *tgbotapi.BotAPI, log zerolog.Logger) *Telegram {
	return &Telegram{bot: bot, log: log, MaxRetries: 3}
}

// Send delivers one message to the chat.
func (t *Telegram) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *Telegram) SendWithRetry(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for i := 0; i <= t.MaxRetries; i++ {
		if err := t.Send(chatID, text); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(i)) * time.Second
			t.log.Warn().Err(err).
				Int("attempt", i+1).
				Dur("backoff", backoff).
				Msg("telegram send failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d attempts failed: %w", t.MaxRetries+1, lastErr)
}
