// Package bot implements the Telegram command front end: task management,
// price queries and report scheduling driven by chat commands.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"CryptoSentinel/internal/exchange"
	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/reporter"
	"CryptoSentinel/internal/store"
)

type Handler struct {
	bot     *tgbotapi.BotAPI
	store   *store.Store
	prices  *exchange.Manager
	reports *reporter.Reporter
	log     zerolog.Logger
}

func NewHandler(bot *tgbotapi.BotAPI, st *store.Store, prices *exchange.Manager, reports *reporter.Reporter, log zerolog.Logger) *Handler {
	return &Handler{
		bot:     bot,
		store:   st,
		prices:  prices,
		reports: reports,
		log:     log,
	}
}

// Start long-polls for updates until ctx is cancelled. It blocks, so
// callers run it in a goroutine of their own.
func (h *Handler) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.bot.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		h.bot.StopReceivingUpdates()
	}()

	h.log.Info().Str("bot", h.bot.Self.UserName).Msg("telegram bot listening")

	for update := range updates {
		if update.Message == nil {
			continue
		}
		go h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	h.touchUser(msg.From)

	if !msg.IsCommand() {
		h.send(msg.Chat.ID, "💡 使用 /help 查看可用指令")
		return
	}

	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		h.cmdStart(msg)
	case "help":
		h.cmdHelp(msg)
	case "price":
		h.cmdPrice(ctx, msg, args)
	case "add":
		h.cmdAdd(ctx, msg, args)
	case "list":
		h.cmdList(msg)
	case "delete":
		h.cmdDelete(msg, args)
	case "pause":
		h.cmdPause(msg, args)
	case "resume":
		h.cmdResume(msg, args)
	case "report":
		h.cmdReport(ctx, msg, args)
	default:
		h.send(msg.Chat.ID, "❓ 未知指令，使用 /help 查看可用指令")
	}
}

// touchUser registers the sender or refreshes their last-active time.
func (h *Handler) touchUser(from *tgbotapi.User) {
	err := h.store.UpsertUser(&model.User{
		ID:        from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
	})
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", from.ID).Msg("upserting user failed")
	}
}

func (h *Handler) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.bot.Send(msg); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("sending reply failed")
	}
}
