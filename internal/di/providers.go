package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/alerts"
	"github.com/Rajchodisetti/price-alerts/internal/bot"
	"github.com/Rajchodisetti/price-alerts/internal/config"
	"github.com/Rajchodisetti/price-alerts/internal/events"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
	"github.com/Rajchodisetti/price-alerts/internal/server"
	"github.com/Rajchodisetti/price-alerts/internal/telegram"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ProvideFetcher creates the quote fetcher shared by every caller
func ProvideFetcher(cfg *config.Root) (*adapters.AlphaVantageAdapter, error) {
	f, err := adapters.NewFetcher(cfg.Quotes)
	if err != nil {
		return nil, fmt.Errorf("quote fetcher: %w", err)
	}
	return f, nil
}

func ProvideAnalytics(f *adapters.AlphaVantageAdapter) *adapters.Analytics {
	return adapters.NewAnalytics(f)
}

// ProvideStore selects the alert store backend
func ProvideStore(cfg *config.Root) (alerts.Store, func(), error) {
	if cfg.Store.Backend != "redis" {
		observ.Log("alert_store_created", map[string]any{"backend": "memory"})
		return alerts.NewMemoryStore(), func() {}, nil
	}

	rc := cfg.Store.Redis
	s, err := alerts.NewRedisStore(context.Background(), alerts.RedisConfig{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		KeyPrefix: rc.KeyPrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis store: %w", err)
	}
	observ.Log("alert_store_created", map[string]any{"backend": "redis", "addr": rc.Addr})
	return s, func() {
		if err := s.Close(); err != nil {
			observ.Warn("redis_close_failed", map[string]any{"error": err.Error()})
		}
	}, nil
}

// ProvidePublisher fans triggered-alert events out to the outbox journal and
// Kafka, whichever are configured
func ProvidePublisher(cfg *config.Root) (events.Publisher, func(), error) {
	var pubs events.MultiPublisher

	if cfg.Outbox.Path != "" {
		ob, err := events.NewOutbox(cfg.Outbox.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("outbox: %w", err)
		}
		pubs = append(pubs, ob)
	}

	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: seconds(cfg.Kafka.WriteTimeoutSeconds),
		})
		if err != nil {
			_ = pubs.Close()
			return nil, nil, fmt.Errorf("kafka publisher: %w", err)
		}
		pubs = append(pubs, kp)
	}

	observ.Log("event_publishers_created", map[string]any{
		"outbox": cfg.Outbox.Path,
		"kafka":  cfg.Kafka.Enabled,
	})
	if len(pubs) == 0 {
		return events.NopPublisher{}, func() {}, nil
	}
	return pubs, func() {
		if err := pubs.Close(); err != nil {
			observ.Warn("event_publisher_close_failed", map[string]any{"error": err.Error()})
		}
	}, nil
}

func ProvideTelegramClient(cfg *config.Root) (*telegram.Client, error) {
	if cfg.Telegram.Token == "" {
		return nil, errors.New("telegram bot token is required (set " + cfg.Telegram.TokenEnv + ")")
	}
	return telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.BaseURL, seconds(cfg.Telegram.TimeoutSeconds)), nil
}

func ProvideNotifier(cfg *config.Root, client *telegram.Client) *telegram.Notifier {
	tc := cfg.Telegram
	return telegram.NewNotifier(client, telegram.NotifierConfig{
		QueueSize:     tc.QueueSize,
		MaxRetries:    tc.MaxRetries,
		BackoffBase:   time.Duration(tc.BackoffBaseMs) * time.Millisecond,
		RatePerSecond: tc.RatePerSecond,
		Burst:         tc.Burst,
	})
}

func ProvideBot(cfg *config.Root, a *adapters.Analytics, store alerts.Store, n *telegram.Notifier) *bot.Bot {
	return bot.New(a, store, n, bot.Config{
		DefaultInterval: seconds(cfg.Alerts.DefaultIntervalSeconds),
		ChartDays:       adapters.DefaultHistoryDays,
	})
}

// ProvideUpdateHandler acknowledges menu presses before the bot sees them
func ProvideUpdateHandler(client *telegram.Client, b *bot.Bot) telegram.UpdateHandler {
	return telegram.WithCallbackAck(client, b)
}

func ProvideEvaluator(cfg *config.Root, store alerts.Store, a *adapters.Analytics, n *telegram.Notifier, pub events.Publisher) *alerts.Evaluator {
	return alerts.NewEvaluator(store, a, n, pub, alerts.EvaluatorConfig{
		CheckInterval: seconds(cfg.Alerts.CheckIntervalSeconds),
		FirstDelay:    seconds(cfg.Alerts.FirstDelaySeconds),
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ProvideServer builds the HTTP surface. Webhook routes exist only in
// webhook mode.
func ProvideServer(
	cfg *config.Root,
	f *adapters.AlphaVantageAdapter,
	a *adapters.Analytics,
	store alerts.Store,
	n *telegram.Notifier,
	updates telegram.UpdateHandler,
) *server.Server {
	checks := map[string]observ.HealthCheck{
		"quota": func() (map[string]any, bool) {
			u := f.Usage()
			return map[string]any{
				"minute_used": u.MinuteUsed,
				"day_used":    u.DayUsed,
				"day_cap":     u.DayCap,
			}, u.Exhausted()
		},
		"notifier": func() (map[string]any, bool) {
			m := n.Metrics()
			return map[string]any{
				"queue_depth": m.QueueDepth,
				"sent":        m.Sent,
				"failed":      m.Failed,
				"dropped":     m.Dropped,
			}, false
		},
	}
	if p, ok := store.(pinger); ok {
		checks["store"] = func() (map[string]any, bool) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				return map[string]any{"error": err.Error()}, true
			}
			return map[string]any{"ok": true}, false
		}
	}

	deps := server.Deps{Quotes: a, Quota: f, Checks: checks}
	if cfg.Telegram.Transport == "webhook" {
		deps.Updates = updates
	}
	return server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: seconds(cfg.Server.ShutdownTimeoutSeconds),
		WebhookSecret:   cfg.Telegram.WebhookSecret,
	}, deps)
}

func ProvideApp(
	cfg *config.Root,
	client *telegram.Client,
	updates telegram.UpdateHandler,
	n *telegram.Notifier,
	eval *alerts.Evaluator,
	srv *server.Server,
) *App {
	app := &App{
		cfg:       cfg,
		webhooks:  client,
		notifier:  n,
		evaluator: eval,
		server:    srv,
	}
	if cfg.Telegram.Transport != "webhook" {
		app.poller = telegram.NewPoller(client, updates, cfg.Telegram.PollTimeoutSeconds)
	}
	return app
}
