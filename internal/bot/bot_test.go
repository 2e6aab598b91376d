package bot

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/alerts"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

func TestMain(m *testing.M) {
	observ.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const (
	chatID = int64(42)
	userID = int64(7)
)

type sent struct {
	chatID int64
	text   string
	markup *tgbotapi.InlineKeyboardMarkup
}

type fakeSender struct {
	mu  sync.Mutex
	out []sent
}

func (s *fakeSender) Send(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sent{chatID: chatID, text: text})
	return nil
}

func (s *fakeSender) SendMenu(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sent{chatID: chatID, text: text, markup: markup})
	return nil
}

func (s *fakeSender) last(t *testing.T) sent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.out, "no reply sent")
	return s.out[len(s.out)-1]
}

type fakeQuotes struct {
	prices  map[string]adapters.Result[float64]
	avgs    map[int]adapters.Result[float64]
	history adapters.Result[[]adapters.Bar]
	calls   []string
}

func (q *fakeQuotes) CurrentPrice(ctx context.Context, symbol string) adapters.Result[float64] {
	q.calls = append(q.calls, "price:"+symbol)
	if r, ok := q.prices[symbol]; ok {
		return r
	}
	return adapters.Result[float64]{Outcome: adapters.OutcomeNotFound}
}

func (q *fakeQuotes) MovingAverage(ctx context.Context, symbol string, days int) adapters.Result[float64] {
	q.calls = append(q.calls, "ma:"+symbol)
	if r, ok := q.avgs[days]; ok {
		return r
	}
	return adapters.Result[float64]{Outcome: adapters.OutcomeNotFound}
}

func (q *fakeQuotes) History(ctx context.Context, symbol string, days int) adapters.Result[[]adapters.Bar] {
	q.calls = append(q.calls, "history:"+symbol)
	return q.history
}

func ok(v float64) adapters.Result[float64] {
	return adapters.Result[float64]{Outcome: adapters.OutcomeSuccess, Value: v}
}

var limited = adapters.Result[float64]{Outcome: adapters.OutcomeRateLimited, Message: adapters.DailyLimitMessage}

type fixture struct {
	bot    *Bot
	quotes *fakeQuotes
	store  *alerts.MemoryStore
	sender *fakeSender
}

func newFixture() *fixture {
	f := &fixture{
		quotes: &fakeQuotes{prices: map[string]adapters.Result[float64]{}, avgs: map[int]adapters.Result[float64]{}},
		store:  alerts.NewMemoryStore(),
		sender: &fakeSender{},
	}
	f.bot = New(f.quotes, f.store, f.sender, Config{DefaultInterval: 60 * time.Second})
	f.bot.now = func() time.Time { return time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) say(text string) {
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID},
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	})
}

func (f *fixture) press(data string) {
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb",
			From:    &tgbotapi.User{ID: userID},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
			Data:    data,
		},
	})
}

func TestStart_SendsMenu(t *testing.T) {
	f := newFixture()
	f.say("/start")

	reply := f.sender.last(t)
	assert.Equal(t, chatID, reply.chatID)
	assert.Equal(t, msgWelcome, reply.text)
	require.NotNil(t, reply.markup)

	var actions []string
	for _, row := range reply.markup.InlineKeyboard {
		for _, btn := range row {
			require.NotNil(t, btn.CallbackData)
			actions = append(actions, *btn.CallbackData)
		}
	}
	assert.Equal(t, []string{"price", "ma", "alert", "chart"}, actions)
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		setup func(q *fakeQuotes)
		want  string
	}{
		{
			name:  "success normalizes symbol",
			input: "/price aapl",
			setup: func(q *fakeQuotes) { q.prices["AAPL"] = ok(206.8) },
			want:  "Current price of AAPL: $206.80",
		},
		{
			name:  "bot username suffix",
			input: "/price@PriceAlertBot MSFT",
			setup: func(q *fakeQuotes) { q.prices["MSFT"] = ok(415.3) },
			want:  "Current price of MSFT: $415.30",
		},
		{
			name:  "missing symbol",
			input: "/price",
			want:  usagePrice,
		},
		{
			name:  "USD rejected",
			input: "/price usd",
			want:  "USD is the base currency and does not have a price. Please enter a valid stock or crypto symbol (e.g., AAPL, USDT).",
		},
		{
			name:  "rate limited",
			input: "/price AAPL",
			setup: func(q *fakeQuotes) { q.prices["AAPL"] = limited },
			want:  "Daily API limit exceeded. Please try again tomorrow.",
		},
		{
			name:  "not found",
			input: "/price ZZZZ",
			want:  "Invalid symbol or API error.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f.quotes)
			}
			f.say(tt.input)
			assert.Equal(t, tt.want, f.sender.last(t).text)
		})
	}
}

func TestPrice_USDNeverReachesQuotes(t *testing.T) {
	f := newFixture()
	f.say("/price USD")
	assert.Empty(t, f.quotes.calls)
}

func TestMovingAverages(t *testing.T) {
	f := newFixture()
	f.quotes.avgs[7] = ok(201.456)
	f.quotes.avgs[14] = ok(199.5)

	f.say("/ma nvda")
	assert.Equal(t, "NVDA Moving Averages:\n7-day: $201.46\n14-day: $199.50", f.sender.last(t).text)

	f.quotes.avgs[7] = limited
	f.say("/ma NVDA")
	assert.Equal(t, adapters.DailyLimitMessage, f.sender.last(t).text)

	f.say("/ma USD")
	assert.Contains(t, f.sender.last(t).text, "cannot be used for moving averages")
}

func TestAlert_Command(t *testing.T) {
	f := newFixture()

	f.say("/alert aapl 100 30")
	assert.Equal(t, "Alert set for AAPL at $100.00 with check interval 30 seconds.", f.sender.last(t).text)

	f.say("/alert BTC 70000.5")
	assert.Equal(t, "Alert set for BTC at $70000.50 with check interval 60 seconds.", f.sender.last(t).text)

	list, err := f.store.List(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "AAPL", list[0].Symbol)
	assert.Equal(t, 30*time.Second, list[0].Interval)
	assert.Equal(t, 60*time.Second, list[1].Interval)
	assert.NotEmpty(t, list[0].ID)
}

func TestAlert_Rejections(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/alert AAPL", usageAlert},
		{"/alert AAPL abc", msgAlertNumbers},
		{"/alert AAPL 100 soon", msgAlertNumbers},
		{"/alert AAPL -5", msgAlertNumbers},
		{"/alert AAPL 100 0", msgAlertNumbers},
		{"/alert AAPL NaN", msgAlertNumbers},
		{"/alert USD 1", "USD is the base currency and cannot be used for alerts. Please enter a valid stock or crypto symbol (e.g., AAPL, USDT)."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f := newFixture()
			f.say(tt.input)
			assert.Equal(t, tt.want, f.sender.last(t).text)

			list, err := f.store.List(context.Background(), chatID)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestAlerts_ListAndRemove(t *testing.T) {
	f := newFixture()

	f.say("/alerts")
	assert.Contains(t, f.sender.last(t).text, "no active alerts")

	f.say("/alert TSLA 300 120")
	f.say("/alerts")
	assert.Equal(t, "Your alerts:\nTSLA at $300.00, checked every 120 seconds", f.sender.last(t).text)

	f.say("/stop")
	f.say("/alerts")
	assert.Contains(t, f.sender.last(t).text, "Alerts are paused")

	f.say("/unalert tsla")
	assert.Equal(t, "Alert for TSLA removed.", f.sender.last(t).text)

	f.say("/unalert TSLA")
	assert.Equal(t, "No alert set for TSLA.", f.sender.last(t).text)

	f.say("/unalert")
	assert.Equal(t, usageUnalert, f.sender.last(t).text)
}

func TestStopAndRestart(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.say("/stop")
	assert.Equal(t, msgPaused, f.sender.last(t).text)
	paused, err := f.store.IsPaused(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, paused)

	f.say("/restart")
	assert.Equal(t, msgResumed, f.sender.last(t).text)
	paused, err = f.store.IsPaused(ctx, chatID)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestMenuFollowUp(t *testing.T) {
	f := newFixture()
	f.quotes.prices["MSFT"] = ok(415.3)
	f.quotes.prices["AAPL"] = ok(206.8)

	f.say("MSFT")
	assert.Equal(t, msgSelectFirst, f.sender.last(t).text)

	f.press("price")
	assert.Equal(t, "Enter stock symbol (e.g., AAPL):", f.sender.last(t).text)

	f.say("msft")
	assert.Equal(t, "Current price of MSFT: $415.30", f.sender.last(t).text)

	// the choice persists for further input
	f.say("AAPL")
	assert.Equal(t, "Current price of AAPL: $206.80", f.sender.last(t).text)

	f.say("/cancel")
	assert.Equal(t, msgCancelled, f.sender.last(t).text)
	f.say("AAPL")
	assert.Equal(t, msgSelectFirst, f.sender.last(t).text)
}

func TestMenuFollowUp_Alert(t *testing.T) {
	f := newFixture()
	f.press("alert")

	f.say("ETH")
	assert.Equal(t, msgAlertFollowUpFormat, f.sender.last(t).text)

	f.say("eth 4000 90")
	assert.Equal(t, "Alert set for ETH at $4000.00 with check interval 90 seconds.", f.sender.last(t).text)

	f.say("USD 1")
	assert.Contains(t, f.sender.last(t).text, "cannot be used for alerts")
}

func TestMenu_UnknownActionIgnored(t *testing.T) {
	f := newFixture()
	f.press("portfolio")
	assert.Empty(t, f.sender.out)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture()
	f.say("/buy AAPL")
	assert.Equal(t, msgUnknownCommand, f.sender.last(t).text)
}

func bar(date string, close string) adapters.Bar {
	d, _ := time.Parse("2006-01-02", date)
	return adapters.Bar{Date: d, Close: decimal.RequireFromString(close)}
}

func TestChart(t *testing.T) {
	f := newFixture()
	f.quotes.history = adapters.Result[[]adapters.Bar]{
		Outcome: adapters.OutcomeSuccess,
		Value: []adapters.Bar{
			bar("2024-03-11", "100"),
			bar("2024-03-12", "120.5"),
			bar("2024-03-13", "95.25"),
			bar("2024-03-14", "110"),
		},
	}

	f.say("/chart aapl")
	assert.Equal(t,
		"AAPL closing prices, last 4 sessions (2024-03-11 to 2024-03-14):\n"+
			"First: $100.00\nLast: $110.00\nHigh: $120.50\nLow: $95.25\nChange: +10.00%",
		f.sender.last(t).text)

	f.quotes.history = adapters.Result[[]adapters.Bar]{Outcome: adapters.OutcomeNotFound}
	f.say("/chart ZZZZ")
	assert.Equal(t, msgInvalid, f.sender.last(t).text)

	f.say("/chart")
	assert.Equal(t, usageChart, f.sender.last(t).text)
}

func TestBot_WithMockFetcher(t *testing.T) {
	t.Setenv("QUOTES", "")
	fetcher, err := adapters.NewFetcher(adapters.QuotesConfig{Adapter: "mock"})
	require.NoError(t, err)

	sender := &fakeSender{}
	b := New(adapters.NewAnalytics(fetcher), alerts.NewMemoryStore(), sender, Config{})
	f := &fixture{bot: b, sender: sender}

	f.say("/price aapl")
	assert.Equal(t, "Current price of AAPL: $206.80", sender.last(t).text)

	f.say("/ma BTC")
	assert.Contains(t, sender.last(t).text, "BTC Moving Averages:")

	f.say("/chart MSFT")
	assert.Contains(t, sender.last(t).text, "MSFT closing prices, last 30 sessions")
	assert.Contains(t, sender.last(t).text, "Last: $415.30")

	f.say("/price NOPE")
	assert.Equal(t, msgInvalid, sender.last(t).text)
}
