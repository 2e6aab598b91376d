package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const DefaultBaseURL = "https://api.telegram.org"

// IsRetryable treats transport errors, throttling and server errors as
// retryable
func IsRetryable(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return err != nil && !errors.Is(err, context.Canceled)
}

// RetryAfter is the wait Telegram asked for with a 429, or 0
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

// Client calls the Telegram Bot API through tgbotapi, binding each call to a
// context
type Client struct {
	api        *tgbotapi.BotAPI
	timeout    time.Duration
	httpClient *http.Client
	pollClient *http.Client // no client timeout; long polls are bounded by ctx
}

// NewClient creates a client without calling getMe; an empty baseURL uses
// the public API
func NewClient(token, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	api := &tgbotapi.BotAPI{Token: token, Client: httpClient, Buffer: 100}
	api.SetAPIEndpoint(strings.TrimRight(baseURL, "/") + "/bot%s/%s")

	return &Client{
		api:        api,
		timeout:    timeout,
		httpClient: httpClient,
		pollClient: &http.Client{},
	}
}

type ctxDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}

// bind returns a copy of the API whose requests run under ctx
func (c *Client) bind(ctx context.Context, hc *http.Client) *tgbotapi.BotAPI {
	api := *c.api
	api.Client = ctxDoer{ctx: ctx, client: hc}
	return &api
}

func wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	// the request URL embeds the token; keep it out of errors and logs
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	_, err := c.bind(ctx, c.httpClient).Send(msg.config())
	return wrap("sendMessage", err)
}

// GetUpdates long-polls for up to timeoutSec seconds
func (c *Client) GetUpdates(ctx context.Context, offset, timeoutSec int) ([]tgbotapi.Update, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second+c.timeout)
	defer cancel()

	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = timeoutSec
	cfg.AllowedUpdates = allowedUpdates

	updates, err := c.bind(ctx, c.pollClient).GetUpdates(cfg)
	if err != nil {
		return nil, wrap("getUpdates", err)
	}
	return updates, nil
}

func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	allowed, err := json.Marshal(allowedUpdates)
	if err != nil {
		return err
	}
	params := tgbotapi.Params{
		"url":             webhookURL,
		"allowed_updates": string(allowed),
	}
	params.AddNonEmpty("secret_token", secret)

	_, err = c.bind(ctx, c.httpClient).MakeRequest("setWebhook", params)
	return wrap("setWebhook", err)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.bind(ctx, c.httpClient).Request(tgbotapi.DeleteWebhookConfig{})
	return wrap("deleteWebhook", err)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	_, err := c.bind(ctx, c.httpClient).Request(tgbotapi.NewCallback(id, ""))
	return wrap("answerCallbackQuery", err)
}
