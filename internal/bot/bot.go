package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/alerts"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
	"github.com/Rajchodisetti/price-alerts/internal/telegram"
)

// Quotes is the part of the analytics layer the bot reads from
type Quotes interface {
	CurrentPrice(ctx context.Context, symbol string) adapters.Result[float64]
	MovingAverage(ctx context.Context, symbol string, days int) adapters.Result[float64]
	History(ctx context.Context, symbol string, days int) adapters.Result[[]adapters.Bar]
}

// Sender delivers replies to a chat
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendMenu(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error
}

type Config struct {
	// DefaultInterval applies to /alert without an explicit interval
	DefaultInterval time.Duration
	ChartDays       int
}

// action is a menu choice waiting for the user's follow-up text
type action string

const (
	actionPrice action = "price"
	actionMA    action = "ma"
	actionAlert action = "alert"
	actionChart action = "chart"
)

type request struct {
	chatID int64
	userID int64
	args   []string
}

type commandFunc func(ctx context.Context, req request)

// Bot routes chat commands, menu presses and follow-up text to the quote
// layer and the alert store
type Bot struct {
	quotes Quotes
	store  alerts.Store
	sender Sender
	cfg    Config
	now    func() time.Time

	commands map[string]commandFunc

	mu      sync.Mutex
	pending map[int64]action // by user ID
}

func New(quotes Quotes, store alerts.Store, sender Sender, cfg Config) *Bot {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 60 * time.Second
	}
	if cfg.ChartDays <= 0 {
		cfg.ChartDays = adapters.DefaultHistoryDays
	}

	b := &Bot{
		quotes:  quotes,
		store:   store,
		sender:  sender,
		cfg:     cfg,
		now:     time.Now,
		pending: make(map[int64]action),
	}
	b.commands = map[string]commandFunc{
		"start":   b.cmdStart,
		"help":    b.cmdHelp,
		"cancel":  b.cmdCancel,
		"stop":    b.cmdStop,
		"restart": b.cmdRestart,
		"price":   b.cmdPrice,
		"ma":      b.cmdMA,
		"alert":   b.cmdAlert,
		"alerts":  b.cmdAlerts,
		"unalert": b.cmdUnalert,
		"chart":   b.cmdChart,
	}
	return b
}

// HandleUpdate implements telegram.UpdateHandler
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	chatID := telegram.ChatID(u)
	if chatID == 0 {
		return
	}
	userID := telegram.UserID(u)

	switch {
	case u.CallbackQuery != nil:
		b.handleMenu(ctx, chatID, userID, u.CallbackQuery.Data)
	case u.Message != nil:
		text := strings.TrimSpace(u.Message.Text)
		if text == "" {
			return
		}
		if strings.HasPrefix(text, "/") {
			b.handleCommand(ctx, chatID, userID, text)
			return
		}
		b.handleFollowUp(ctx, chatID, userID, text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID, userID int64, text string) {
	name, args := parseCommand(text)
	observ.Log("bot_command", map[string]any{
		"command": name,
		"chat_id": chatID,
		"user_id": userID,
	})

	cmd, ok := b.commands[name]
	if !ok {
		observ.RecordBotCommand("unknown")
		b.reply(ctx, chatID, msgUnknownCommand)
		return
	}
	observ.RecordBotCommand(name)
	cmd(ctx, request{chatID: chatID, userID: userID, args: args})
}

func (b *Bot) handleMenu(ctx context.Context, chatID, userID int64, data string) {
	act := action(data)
	prompt, ok := menuPrompts[act]
	if !ok {
		observ.Warn("bot_unknown_menu_action", map[string]any{"data": data, "chat_id": chatID})
		return
	}

	b.mu.Lock()
	b.pending[userID] = act
	b.mu.Unlock()

	observ.RecordBotCommand("menu_" + data)
	observ.Log("bot_menu_selected", map[string]any{
		"action":  data,
		"chat_id": chatID,
		"user_id": userID,
	})
	b.reply(ctx, chatID, prompt)
}

// handleFollowUp treats plain text as input to the user's last menu choice.
// The choice stays until /cancel or another menu press.
func (b *Bot) handleFollowUp(ctx context.Context, chatID, userID int64, text string) {
	b.mu.Lock()
	act, ok := b.pending[userID]
	b.mu.Unlock()
	if !ok {
		b.reply(ctx, chatID, msgSelectFirst)
		return
	}

	observ.RecordBotCommand("followup_" + string(act))
	switch act {
	case actionPrice:
		b.reply(ctx, chatID, b.priceReply(ctx, text))
	case actionMA:
		b.reply(ctx, chatID, b.maReply(ctx, text))
	case actionChart:
		b.reply(ctx, chatID, b.chartReply(ctx, text))
	case actionAlert:
		parts := strings.Fields(text)
		if len(parts) < 2 {
			b.reply(ctx, chatID, msgAlertFollowUpFormat)
			return
		}
		b.reply(ctx, chatID, b.setAlert(ctx, chatID, parts, msgAlertFollowUpFormat))
	}
}

func (b *Bot) clearPending(userID int64) {
	b.mu.Lock()
	delete(b.pending, userID)
	b.mu.Unlock()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.Send(ctx, chatID, text); err != nil {
		observ.Error("bot_reply_failed", err, map[string]any{"chat_id": chatID})
	}
}

// parseCommand splits "/price@SomeBot aapl" into ("price", ["aapl"])
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name, fields[1:]
}
