package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/alerts"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

const (
	msgWelcome             = "Welcome to the Stock Bot! Select an option or use /help for commands."
	msgInvalid             = "Invalid symbol or API error."
	msgSelectFirst         = "Please select an option from the menu first using /start."
	msgUnknownCommand      = "Unknown command. Use /help for the list of commands."
	msgCancelled           = "Action cancelled. Use /start to begin again."
	msgPaused              = "Alerts paused. Use /restart to resume."
	msgResumed             = "Alerts resumed."
	msgStoreFailed         = "Could not update your alerts. Please try again later."
	msgAlertNumbers        = "Threshold and interval must be numbers (e.g., /alert AAPL 100 30)."
	msgAlertFollowUpFormat = "Please enter symbol, threshold, and optional interval (e.g., AAPL 100 30)."

	usagePrice   = "Usage: /price <symbol> (e.g., /price AAPL)"
	usageMA      = "Usage: /ma <symbol> (e.g., /ma AAPL)"
	usageAlert   = "Usage: /alert <symbol> <threshold> [interval] (e.g., /alert AAPL 100 30)"
	usageUnalert = "Usage: /unalert <symbol> (e.g., /unalert AAPL)"
	usageChart   = "Usage: /chart <symbol> (e.g., /chart AAPL)"

	helpText = "Stock Bot Commands:\n" +
		"/start - Show the menu\n" +
		"/help - Show this message\n" +
		"/cancel - Cancel current action\n" +
		"/stop - Pause alerts\n" +
		"/restart - Resume alerts\n" +
		"/price <symbol> - Get current price (e.g., /price AAPL)\n" +
		"/ma <symbol> - Get moving averages (e.g., /ma AAPL)\n" +
		"/alert <symbol> <threshold> [interval] - Set alert (e.g., /alert AAPL 100 30)\n" +
		"/alerts - List your alerts\n" +
		"/unalert <symbol> - Remove an alert (e.g., /unalert AAPL)\n" +
		"/chart <symbol> - View price summary (e.g., /chart AAPL)\n\n" +
		"Features (select from menu or use commands):\n" +
		"- Get Price: Enter symbol (e.g., AAPL)\n" +
		"- Moving Averages: Enter symbol (e.g., AAPL)\n" +
		"- Set Alert: Enter symbol, threshold, and optional interval (seconds)\n" +
		"- View Chart: Enter symbol (e.g., AAPL)"
)

var menuPrompts = map[action]string{
	actionPrice: "Enter stock symbol (e.g., AAPL):",
	actionMA:    "Enter stock symbol for moving averages:",
	actionAlert: "Enter stock symbol, price threshold, and optional interval (e.g., AAPL 100 30):",
	actionChart: "Enter stock symbol for price chart:",
}

func mainMenu() *tgbotapi.InlineKeyboardMarkup {
	button := func(text string, act action) []tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, string(act)))
	}
	menu := tgbotapi.NewInlineKeyboardMarkup(
		button("Get Price", actionPrice),
		button("Moving Averages", actionMA),
		button("Set Alert", actionAlert),
		button("View Chart", actionChart),
	)
	return &menu
}

// usdReply explains why the base currency cannot be used
func usdReply(act action) string {
	const suffix = " Please enter a valid stock or crypto symbol (e.g., AAPL, USDT)."
	switch act {
	case actionMA:
		return "USD is the base currency and cannot be used for moving averages." + suffix
	case actionAlert:
		return "USD is the base currency and cannot be used for alerts." + suffix
	case actionChart:
		return "USD is the base currency and cannot be used for charts." + suffix
	default:
		return "USD is the base currency and does not have a price." + suffix
	}
}

// checkSymbol normalizes raw input; on rejection it returns the reply to send
func checkSymbol(raw string, act action) (string, string, bool) {
	symbol := adapters.NormalizeSymbol(raw)
	switch err := adapters.ValidateSymbol(symbol); {
	case errors.Is(err, adapters.ErrReservedSymbol):
		return "", usdReply(act), false
	case err != nil:
		return "", msgInvalid, false
	}
	return symbol, "", true
}

// failureReply keeps the daily-limit text distinct from lookup failures
func failureReply(outcome adapters.Outcome, message string) string {
	if outcome == adapters.OutcomeRateLimited {
		if message == "" {
			return adapters.DailyLimitMessage
		}
		return message
	}
	return msgInvalid
}

func (b *Bot) cmdStart(ctx context.Context, req request) {
	if err := b.sender.SendMenu(ctx, req.chatID, msgWelcome, mainMenu()); err != nil {
		observ.Error("bot_reply_failed", err, map[string]any{"chat_id": req.chatID})
	}
}

func (b *Bot) cmdHelp(ctx context.Context, req request) {
	b.reply(ctx, req.chatID, helpText)
}

func (b *Bot) cmdCancel(ctx context.Context, req request) {
	b.clearPending(req.userID)
	b.reply(ctx, req.chatID, msgCancelled)
}

func (b *Bot) cmdStop(ctx context.Context, req request) {
	b.setPaused(ctx, req.chatID, true, msgPaused)
}

func (b *Bot) cmdRestart(ctx context.Context, req request) {
	b.setPaused(ctx, req.chatID, false, msgResumed)
}

func (b *Bot) setPaused(ctx context.Context, chatID int64, paused bool, ok string) {
	if err := b.store.SetPaused(ctx, chatID, paused); err != nil {
		observ.Error("bot_set_paused_failed", err, map[string]any{"chat_id": chatID, "paused": paused})
		b.reply(ctx, chatID, msgStoreFailed)
		return
	}
	b.reply(ctx, chatID, ok)
}

func (b *Bot) cmdPrice(ctx context.Context, req request) {
	if len(req.args) == 0 {
		b.reply(ctx, req.chatID, usagePrice)
		return
	}
	b.reply(ctx, req.chatID, b.priceReply(ctx, req.args[0]))
}

func (b *Bot) priceReply(ctx context.Context, raw string) string {
	symbol, rejected, ok := checkSymbol(raw, actionPrice)
	if !ok {
		return rejected
	}
	res := b.quotes.CurrentPrice(ctx, symbol)
	if !res.OK() {
		return failureReply(res.Outcome, res.Message)
	}
	return fmt.Sprintf("Current price of %s: $%.2f", symbol, res.Value)
}

func (b *Bot) cmdMA(ctx context.Context, req request) {
	if len(req.args) == 0 {
		b.reply(ctx, req.chatID, usageMA)
		return
	}
	b.reply(ctx, req.chatID, b.maReply(ctx, req.args[0]))
}

func (b *Bot) maReply(ctx context.Context, raw string) string {
	symbol, rejected, ok := checkSymbol(raw, actionMA)
	if !ok {
		return rejected
	}
	ma7 := b.quotes.MovingAverage(ctx, symbol, 7)
	if !ma7.OK() {
		return failureReply(ma7.Outcome, ma7.Message)
	}
	// served from cache after the first call
	ma14 := b.quotes.MovingAverage(ctx, symbol, 14)
	if !ma14.OK() {
		return failureReply(ma14.Outcome, ma14.Message)
	}
	return fmt.Sprintf("%s Moving Averages:\n7-day: $%.2f\n14-day: $%.2f", symbol, ma7.Value, ma14.Value)
}

func (b *Bot) cmdAlert(ctx context.Context, req request) {
	if len(req.args) < 2 {
		b.reply(ctx, req.chatID, usageAlert)
		return
	}
	b.reply(ctx, req.chatID, b.setAlert(ctx, req.chatID, req.args, msgAlertNumbers))
}

// setAlert parses "SYMBOL THRESHOLD [INTERVAL]" and stores the alert.
// badNumbers is the reply for an unparsable threshold or interval.
func (b *Bot) setAlert(ctx context.Context, chatID int64, parts []string, badNumbers string) string {
	threshold, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return badNumbers
	}
	interval := b.cfg.DefaultInterval
	if len(parts) > 2 {
		secs, err := strconv.Atoi(parts[2])
		if err != nil || secs < 1 {
			return badNumbers
		}
		interval = time.Duration(secs) * time.Second
	}

	symbol, rejected, ok := checkSymbol(parts[0], actionAlert)
	if !ok {
		return rejected
	}

	a := alerts.NewAlert(chatID, symbol, threshold, interval, b.now())
	if err := b.store.Add(ctx, a); err != nil {
		observ.Error("bot_alert_add_failed", err, map[string]any{"chat_id": chatID, "symbol": symbol})
		return msgStoreFailed
	}
	observ.Log("alert_created", map[string]any{
		"alert_id":   a.ID,
		"chat_id":    chatID,
		"symbol":     symbol,
		"threshold":  threshold,
		"interval_s": int(interval.Seconds()),
	})
	return fmt.Sprintf("Alert set for %s at $%.2f with check interval %d seconds.", symbol, threshold, int(interval.Seconds()))
}

func (b *Bot) cmdAlerts(ctx context.Context, req request) {
	list, err := b.store.List(ctx, req.chatID)
	if err != nil {
		observ.Error("bot_alert_list_failed", err, map[string]any{"chat_id": req.chatID})
		b.reply(ctx, req.chatID, msgStoreFailed)
		return
	}
	if len(list) == 0 {
		b.reply(ctx, req.chatID, "You have no active alerts. Use /alert to set one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your alerts:")
	for _, a := range list {
		fmt.Fprintf(&sb, "\n%s at $%.2f, checked every %d seconds", a.Symbol, a.Threshold, int(a.Interval.Seconds()))
	}
	if paused, err := b.store.IsPaused(ctx, req.chatID); err == nil && paused {
		sb.WriteString("\n\nAlerts are paused. Use /restart to resume.")
	}
	b.reply(ctx, req.chatID, sb.String())
}

func (b *Bot) cmdUnalert(ctx context.Context, req request) {
	if len(req.args) == 0 {
		b.reply(ctx, req.chatID, usageUnalert)
		return
	}
	symbol := adapters.NormalizeSymbol(req.args[0])

	switch err := b.store.Remove(ctx, req.chatID, symbol); {
	case errors.Is(err, alerts.ErrNotFound):
		b.reply(ctx, req.chatID, fmt.Sprintf("No alert set for %s.", symbol))
	case err != nil:
		observ.Error("bot_alert_remove_failed", err, map[string]any{"chat_id": req.chatID, "symbol": symbol})
		b.reply(ctx, req.chatID, msgStoreFailed)
	default:
		b.reply(ctx, req.chatID, fmt.Sprintf("Alert for %s removed.", symbol))
	}
}

func (b *Bot) cmdChart(ctx context.Context, req request) {
	if len(req.args) == 0 {
		b.reply(ctx, req.chatID, usageChart)
		return
	}
	b.reply(ctx, req.chatID, b.chartReply(ctx, req.args[0]))
}

func (b *Bot) chartReply(ctx context.Context, raw string) string {
	symbol, rejected, ok := checkSymbol(raw, actionChart)
	if !ok {
		return rejected
	}
	res := b.quotes.History(ctx, symbol, b.cfg.ChartDays)
	if !res.OK() {
		return failureReply(res.Outcome, res.Message)
	}
	if len(res.Value) == 0 {
		return msgInvalid
	}
	return chartSummary(symbol, res.Value)
}

// chartSummary renders the chart window as text
func chartSummary(symbol string, bars []adapters.Bar) string {
	first, last := bars[0], bars[len(bars)-1]
	high, low := first.Close, first.Close
	for _, bar := range bars[1:] {
		if bar.Close.GreaterThan(high) {
			high = bar.Close
		}
		if bar.Close.LessThan(low) {
			low = bar.Close
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s closing prices, last %d sessions (%s to %s):\n",
		symbol, len(bars), first.Date.Format("2006-01-02"), last.Date.Format("2006-01-02"))
	fmt.Fprintf(&sb, "First: $%s\nLast: $%s\nHigh: $%s\nLow: $%s",
		first.Close.StringFixed(2), last.Close.StringFixed(2), high.StringFixed(2), low.StringFixed(2))

	if !first.Close.IsZero() {
		change := last.Close.Sub(first.Close).Div(first.Close).Mul(decimal.NewFromInt(100))
		sign := ""
		if change.IsPositive() {
			sign = "+"
		}
		fmt.Fprintf(&sb, "\nChange: %s%s%%", sign, change.StringFixed(2))
	}
	return sb.String()
}
