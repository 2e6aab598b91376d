package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rajchodisetti/price-alerts/internal/config"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

type runner interface {
	Run(ctx context.Context) error
}

type webhookRegistrar interface {
	SetWebhook(ctx context.Context, webhookURL, secret string) error
}

type closer interface {
	Close(ctx context.Context) error
}

type httpServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// App owns the long-running parts of the bot and their shutdown order
type App struct {
	cfg       *config.Root
	webhooks  webhookRegistrar
	poller    runner // nil in webhook mode
	evaluator runner
	notifier  closer
	server    httpServer
}

func (a *App) webhookMode() bool {
	return a.cfg.Telegram.Transport == "webhook"
}

// Run starts everything and blocks until ctx ends, then shuts down
func (a *App) Run(ctx context.Context) error {
	serveHTTP := a.cfg.Server.Enabled || a.webhookMode()
	if serveHTTP {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}

	if a.webhookMode() {
		if err := a.webhooks.SetWebhook(ctx, a.cfg.Telegram.WebhookURL, a.cfg.Telegram.WebhookSecret); err != nil {
			if serveHTTP {
				_ = a.server.Stop(context.Background())
			}
			return fmt.Errorf("register webhook: %w", err)
		}
		observ.Log("telegram_webhook_registered", map[string]any{"url": a.cfg.Telegram.WebhookURL})
	}

	var wg sync.WaitGroup
	a.spawn(ctx, &wg, "alert_evaluator", a.evaluator)
	if a.poller != nil {
		a.spawn(ctx, &wg, "telegram_poller", a.poller)
	}

	observ.Log("app_started", map[string]any{
		"transport": a.cfg.Telegram.Transport,
		"http":      serveHTTP,
		"port":      a.cfg.Server.Port,
		"version":   observ.Version(),
	})

	<-ctx.Done()
	observ.Log("shutdown_signal_received", nil)
	return a.shutdown(&wg, serveHTTP)
}

func (a *App) spawn(ctx context.Context, wg *sync.WaitGroup, name string, r runner) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			observ.Error(name+"_failed", err, nil)
		}
	}()
}

// shutdown lets the evaluator finish its pass, stops HTTP, then drains queued
// notifications, all inside one shutdown budget
func (a *App) shutdown(wg *sync.WaitGroup, serveHTTP bool) error {
	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		observ.Warn("shutdown_workers_timeout", nil)
	}

	var errs []error
	if serveHTTP {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if err := a.notifier.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notifier: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		observ.Error("shutdown_incomplete", err, nil)
		return err
	}
	observ.Log("shutdown_complete", nil)
	return nil
}
