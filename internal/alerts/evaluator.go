package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/events"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

// PriceSource yields the latest close for a symbol
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) adapters.Result[float64]
}

// Notifier delivers a text message to a chat
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TriggerMessage is the text sent when an alert fires
func TriggerMessage(symbol string, price, threshold float64) string {
	return fmt.Sprintf("Alert: %s has reached $%.2f, exceeding your threshold of $%.2f!", symbol, price, threshold)
}

type EvaluatorConfig struct {
	CheckInterval time.Duration
	FirstDelay    time.Duration
}

// TickSummary counts what one evaluation pass did
type TickSummary struct {
	Checked     int
	Triggered   int
	Paused      int
	NotDue      int
	Failed      int
	RateLimited bool
}

// Evaluator periodically checks stored alerts against current prices. A
// triggered alert is notified, published and removed.
type Evaluator struct {
	store     Store
	prices    PriceSource
	notifier  Notifier
	publisher events.Publisher
	cfg       EvaluatorConfig
	now       func() time.Time
}

func NewEvaluator(store Store, prices PriceSource, notifier Notifier, publisher events.Publisher, cfg EvaluatorConfig) *Evaluator {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 60 * time.Second
	}
	if cfg.FirstDelay < 0 {
		cfg.FirstDelay = 0
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Evaluator{
		store:     store,
		prices:    prices,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run evaluates after FirstDelay and then every CheckInterval until ctx ends.
// A pass already underway is allowed to finish.
func (e *Evaluator) Run(ctx context.Context) error {
	observ.Log("alert_evaluator_started", map[string]any{
		"check_interval_s": e.cfg.CheckInterval.Seconds(),
		"first_delay_s":    e.cfg.FirstDelay.Seconds(),
	})

	timer := time.NewTimer(e.cfg.FirstDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		e.RunOnce(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			observ.Log("alert_evaluator_stopped", nil)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce makes a single pass over all alerts
func (e *Evaluator) RunOnce(ctx context.Context) TickSummary {
	var sum TickSummary

	all, err := e.store.All(ctx)
	if err != nil {
		observ.Error("alert_store_list_failed", err, nil)
		return sum
	}

	now := e.now()
	for _, a := range all {
		paused, err := e.store.IsPaused(ctx, a.ChatID)
		if err != nil {
			observ.Error("alert_pause_lookup_failed", err, map[string]any{"chat_id": a.ChatID})
			sum.Failed++
			continue
		}
		if paused {
			sum.Paused++
			continue
		}
		if !a.Due(now) {
			sum.NotDue++
			continue
		}

		sum.Checked++
		res := e.prices.CurrentPrice(ctx, a.Symbol)
		switch res.Outcome {
		case adapters.OutcomeSuccess:
		case adapters.OutcomeRateLimited:
			// left unchecked so it is retried next pass; cached symbols
			// further down are still served
			observ.Warn("alert_check_rate_limited", map[string]any{
				"symbol":  a.Symbol,
				"chat_id": a.ChatID,
				"message": res.Message,
			})
			observ.RecordAlertEvaluation("rate_limited")
			sum.RateLimited = true
			continue
		default:
			observ.Warn("alert_price_unavailable", map[string]any{
				"symbol":  a.Symbol,
				"chat_id": a.ChatID,
				"outcome": res.Outcome.String(),
				"error":   errString(res.Err),
			})
			observ.RecordAlertEvaluation("price_unavailable")
			sum.Failed++
			e.markChecked(ctx, a, now)
			continue
		}

		e.markChecked(ctx, a, now)
		if !a.Triggered(res.Value) {
			observ.RecordAlertEvaluation("below_threshold")
			continue
		}

		if err := e.fire(ctx, a, res.Value, now); err != nil {
			observ.Error("alert_notify_failed", err, map[string]any{
				"symbol":  a.Symbol,
				"chat_id": a.ChatID,
			})
			observ.RecordAlertEvaluation("notify_failed")
			sum.Failed++
			continue
		}
		observ.RecordAlertEvaluation("triggered")
		sum.Triggered++
	}

	observ.Log("alert_tick_complete", map[string]any{
		"alerts":    len(all),
		"checked":   sum.Checked,
		"triggered": sum.Triggered,
		"paused":    sum.Paused,
		"failed":    sum.Failed,
	})
	return sum
}

// fire notifies the chat, publishes the event and removes the alert. If the
// notification cannot be queued the alert stays and fires on a later pass.
func (e *Evaluator) fire(ctx context.Context, a Alert, price float64, now time.Time) error {
	if err := e.notifier.Send(ctx, a.ChatID, TriggerMessage(a.Symbol, price, a.Threshold)); err != nil {
		return err
	}

	ev := events.NewAlertTriggered(a.ID, a.ChatID, a.Symbol, price, a.Threshold, now)
	if err := e.publisher.Publish(ctx, ev); err != nil {
		observ.Error("alert_event_publish_failed", err, map[string]any{"alert_id": a.ID})
	}

	if err := e.store.Remove(ctx, a.ChatID, a.Symbol); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("remove triggered alert: %w", err)
	}

	observ.Log("alert_triggered", map[string]any{
		"alert_id":  a.ID,
		"chat_id":   a.ChatID,
		"symbol":    a.Symbol,
		"price":     price,
		"threshold": a.Threshold,
	})
	return nil
}

func (e *Evaluator) markChecked(ctx context.Context, a Alert, now time.Time) {
	if err := e.store.MarkChecked(ctx, a.ChatID, a.Symbol, now); err != nil && !errors.Is(err, ErrNotFound) {
		observ.Error("alert_mark_checked_failed", err, map[string]any{"symbol": a.Symbol, "chat_id": a.ChatID})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
