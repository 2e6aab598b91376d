package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
	"github.com/Rajchodisetti/price-alerts/internal/telegram"
)

// Quotes is the analytics surface served under /api/v1/quotes
type Quotes interface {
	CurrentPrice(ctx context.Context, symbol string) adapters.Result[float64]
	MovingAverage(ctx context.Context, symbol string, days int) adapters.Result[float64]
	History(ctx context.Context, symbol string, days int) adapters.Result[[]adapters.Bar]
}

// QuotaReporter exposes fetcher budget and cache state
type QuotaReporter interface {
	Usage() adapters.QuotaUsage
	CacheMetrics() adapters.CacheMetrics
}

type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	WebhookSecret   string
}

// Deps are the components the routes call into. Updates may be nil when the
// bot polls instead of receiving webhooks.
type Deps struct {
	Quotes  Quotes
	Quota   QuotaReporter
	Updates telegram.UpdateHandler
	Checks  map[string]observ.HealthCheck
}

// Server wraps Echo with the health, metrics, quote API and webhook routes
type Server struct {
	echo    *echo.Echo
	config  Config
	webhook *WebhookHandler
}

func New(cfg Config, deps Deps) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		// long enough for a quote fetch that waits out the per-minute window
		cfg.WriteTimeout = 90 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(Recover())
	e.Use(RequestLogging())

	e.GET("/healthz", echo.WrapHandler(observ.HealthHandler(deps.Checks)))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if deps.Quotes != nil {
		NewQuoteHandler(deps.Quotes, deps.Quota).RegisterRoutes(e)
	}

	s := &Server{echo: e, config: cfg}
	if deps.Updates != nil {
		s.webhook = NewWebhookHandler(deps.Updates, cfg.WebhookSecret)
		s.webhook.RegisterRoutes(e)
	}
	return s
}

// Start listens in the background
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	go func() {
		observ.Log("http_server_listening", map[string]any{"addr": addr})
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observ.Error("http_server_failed", err, map[string]any{"addr": addr})
		}
	}()
	return nil
}

// Stop shuts down the listener, then waits for webhook updates still being
// handled
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if s.webhook != nil {
		if err := s.webhook.Wait(ctx); err != nil {
			return fmt.Errorf("webhook drain: %w", err)
		}
	}
	observ.Log("http_server_stopped", nil)
	return nil
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}
