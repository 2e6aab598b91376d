package telegram

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

type updatesClient interface {
	GetUpdates(ctx context.Context, offset, timeoutSec int) ([]tgbotapi.Update, error)
	DeleteWebhook(ctx context.Context) error
}

// Poller long-polls getUpdates and hands each update to the handler on its
// own goroutine, so one slow quote fetch does not hold up other chats
type Poller struct {
	client     updatesClient
	handler    UpdateHandler
	timeoutSec int
	offset     atomic.Int64
	minBackoff time.Duration
	maxBackoff time.Duration
	sleep      adapters.Sleeper
}

func NewPoller(client updatesClient, handler UpdateHandler, timeoutSec int) *Poller {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	return &Poller{
		client:     client,
		handler:    handler,
		timeoutSec: timeoutSec,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		sleep:      adapters.ContextSleep,
	}
}

// Run polls until ctx ends, then waits for updates still being handled. A
// webhook left registered would make getUpdates fail, so it is removed first.
func (p *Poller) Run(ctx context.Context) error {
	var inflight sync.WaitGroup
	defer inflight.Wait()

	if err := p.client.DeleteWebhook(ctx); err != nil {
		observ.Warn("telegram_delete_webhook_failed", map[string]any{"error": err.Error()})
	}
	observ.Log("telegram_polling_started", map[string]any{"timeout_s": p.timeoutSec})

	backoff := p.minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := p.client.GetUpdates(ctx, int(p.offset.Load()), p.timeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if wait := RetryAfter(err); wait > backoff {
				backoff = wait
			}
			observ.Warn("telegram_poll_failed", map[string]any{
				"error":      err.Error(),
				"backoff_ms": backoff.Milliseconds(),
			})
			if err := p.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = min(backoff*2, p.maxBackoff)
			continue
		}
		backoff = p.minBackoff

		for _, u := range updates {
			if next := int64(u.UpdateID) + 1; next > p.offset.Load() {
				p.offset.Store(next)
			}
			p.dispatch(ctx, &inflight, u)
		}
	}
}

// dispatch handles u in the background; handling outlives a shutdown signal
// so a reply already being fetched still goes out
func (p *Poller) dispatch(ctx context.Context, inflight *sync.WaitGroup, u tgbotapi.Update) {
	hctx := context.WithoutCancel(ctx)
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		p.handler.HandleUpdate(hctx, u)
	}()
}

// Offset is the next update ID the poller will ask for
func (p *Poller) Offset() int64 {
	return p.offset.Load()
}

type callbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, id string) error
}

// WithCallbackAck answers callback queries so the client stops its spinner,
// then passes the update on
func WithCallbackAck(a callbackAnswerer, next UpdateHandler) UpdateHandler {
	return UpdateHandlerFunc(func(ctx context.Context, u tgbotapi.Update) {
		if u.CallbackQuery != nil {
			if err := a.AnswerCallbackQuery(ctx, u.CallbackQuery.ID); err != nil {
				observ.Debug("telegram_callback_ack_failed", map[string]any{"error": err.Error()})
			}
		}
		next.HandleUpdate(ctx, u)
	})
}
