package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/Rajchodisetti/price-alerts/internal/observ"
	"github.com/Rajchodisetti/price-alerts/internal/telegram"
)

// SecretTokenHeader carries the secret registered with setWebhook
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler accepts Bot API updates. Each update is acknowledged at once
// and handled in the background, since a quote fetch can outlast Telegram's
// delivery timeout.
type WebhookHandler struct {
	handler telegram.UpdateHandler
	secret  string
	wg      sync.WaitGroup
}

func NewWebhookHandler(handler telegram.UpdateHandler, secret string) *WebhookHandler {
	return &WebhookHandler{handler: handler, secret: secret}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/telegram/webhook", h.Receive)
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	if h.secret != "" {
		got := c.Request().Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			observ.Warn("telegram_webhook_rejected", map[string]any{"remote": c.RealIP()})
			return dataResponse(c, http.StatusUnauthorized, "secret token mismatch")
		}
	}

	var u tgbotapi.Update
	if err := c.Bind(&u); err != nil {
		return badRequestResponse(c, validationErrors(err))
	}

	ctx := context.WithoutCancel(c.Request().Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.handler.HandleUpdate(ctx, u)
	}()
	return c.NoContent(http.StatusOK)
}

// Wait blocks until in-flight updates finish or ctx ends
func (h *WebhookHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
