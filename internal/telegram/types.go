package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// allowedUpdates limits delivery to what the bot handles
var allowedUpdates = []string{"message", "callback_query"}

// OutgoingMessage is a queued sendMessage call
type OutgoingMessage struct {
	ChatID int64
	Text   string
	Markup *tgbotapi.InlineKeyboardMarkup
}

func (m OutgoingMessage) config() tgbotapi.MessageConfig {
	cfg := tgbotapi.NewMessage(m.ChatID, m.Text)
	if m.Markup != nil {
		cfg.ReplyMarkup = *m.Markup
	}
	return cfg
}

// UpdateHandler consumes updates from polling or the webhook
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update)
}

// UpdateHandlerFunc adapts a function to UpdateHandler
type UpdateHandlerFunc func(ctx context.Context, u tgbotapi.Update)

func (f UpdateHandlerFunc) HandleUpdate(ctx context.Context, u tgbotapi.Update) { f(ctx, u) }

// ChatID returns the chat an update belongs to, or 0. Callback queries from
// inline messages carry no chat.
func ChatID(u tgbotapi.Update) int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// UserID returns the sender of an update, or 0
func UserID(u tgbotapi.Update) int64 {
	switch {
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return u.CallbackQuery.From.ID
	}
	return 0
}
