package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpdates struct {
	mu             sync.Mutex
	batches        [][]tgbotapi.Update
	errs           []error
	offsets        []int
	webhookDeleted bool
}

func (f *fakeUpdates) GetUpdates(ctx context.Context, offset, timeoutSec int) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeUpdates) DeleteWebhook(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhookDeleted = true
	return nil
}

func (f *fakeUpdates) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offsets)
}

func msgUpdate(id int, text string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: id, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}, Text: text}}
}

func TestPoller_AdvancesOffsetAndDispatches(t *testing.T) {
	client := &fakeUpdates{batches: [][]tgbotapi.Update{
		{msgUpdate(10, "/start"), msgUpdate(11, "/help")},
		{msgUpdate(12, "/price AAPL")},
	}}

	var mu sync.Mutex
	var got []string
	handler := UpdateHandlerFunc(func(ctx context.Context, u tgbotapi.Update) {
		mu.Lock()
		got = append(got, u.Message.Text)
		mu.Unlock()
	})

	p := NewPoller(client, handler, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return client.polls() == 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.ElementsMatch(t, []string{"/start", "/help", "/price AAPL"}, got)
	mu.Unlock()
	assert.Equal(t, int64(13), p.Offset())
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.webhookDeleted)
	assert.Equal(t, []int{0, 12, 13}, client.offsets)
}

func TestPoller_SlowUpdateDoesNotBlockOthers(t *testing.T) {
	client := &fakeUpdates{batches: [][]tgbotapi.Update{
		{msgUpdate(1, "/price AAPL")},
		{msgUpdate(2, "/help")},
	}}

	release := make(chan struct{})
	helped := make(chan struct{})
	var slowDone bool
	var mu sync.Mutex
	handler := UpdateHandlerFunc(func(ctx context.Context, u tgbotapi.Update) {
		if u.Message.Text == "/help" {
			close(helped)
			return
		}
		<-release
		mu.Lock()
		slowDone = true
		mu.Unlock()
	})

	p := NewPoller(client, handler, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-helped:
	case <-time.After(time.Second):
		t.Fatal("second update waited behind the first")
	}

	// Run drains in-flight handlers before returning
	cancel()
	select {
	case <-done:
		t.Fatal("poller returned with a handler still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	assert.ErrorIs(t, <-done, context.Canceled)
	mu.Lock()
	assert.True(t, slowDone)
	mu.Unlock()
}

func TestPoller_HandlerContextSurvivesShutdown(t *testing.T) {
	client := &fakeUpdates{batches: [][]tgbotapi.Update{{msgUpdate(1, "/price AAPL")}}}
	started := make(chan struct{})
	release := make(chan struct{})
	var handlerErr error
	handler := UpdateHandlerFunc(func(ctx context.Context, u tgbotapi.Update) {
		close(started)
		<-release
		handlerErr = ctx.Err()
	})

	p := NewPoller(client, handler, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-started
	cancel()
	close(release)
	<-done
	assert.NoError(t, handlerErr)
}

func TestPoller_BacksOffOnErrors(t *testing.T) {
	client := &fakeUpdates{
		errs: []error{
			errors.New("bad gateway"),
			&tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}},
		},
		batches: [][]tgbotapi.Update{{msgUpdate(1, "/help")}},
	}
	handled := make(chan struct{}, 1)
	p := NewPoller(client, UpdateHandlerFunc(func(ctx context.Context, u tgbotapi.Update) { handled <- struct{}{} }), 1)

	var mu sync.Mutex
	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("poller did not recover from an error")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{time.Second, 7 * time.Second}, sleeps, "retry_after overrides a shorter backoff")
}

type fakeAnswerer struct{ ids []string }

func (f *fakeAnswerer) AnswerCallbackQuery(ctx context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

func TestWithCallbackAck(t *testing.T) {
	ack := &fakeAnswerer{}
	var seen []int
	h := WithCallbackAck(ack, UpdateHandlerFunc(func(ctx context.Context, u tgbotapi.Update) {
		seen = append(seen, u.UpdateID)
	}))

	h.HandleUpdate(context.Background(), msgUpdate(1, "/help"))
	h.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 2, CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb", Data: "price"}})

	assert.Equal(t, []string{"cb"}, ack.ids)
	assert.Equal(t, []int{1, 2}, seen)
}
