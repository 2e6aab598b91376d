package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

type Telegram struct {
	Token              string  `yaml:"-"`
	TokenEnv           string  `yaml:"token_env" default:"TELEGRAM_BOT_TOKEN"`
	BaseURL            string  `yaml:"base_url" default:"https://api.telegram.org" validate:"url"`
	Transport          string  `yaml:"transport" default:"polling" validate:"oneof=polling webhook"`
	WebhookURL         string  `yaml:"webhook_url" validate:"required_if=Transport webhook"`
	WebhookSecret      string  `yaml:"webhook_secret"`
	PollTimeoutSeconds int     `yaml:"poll_timeout_seconds" default:"30" validate:"min=1,max=50"`
	TimeoutSeconds     int     `yaml:"timeout_seconds" default:"10" validate:"min=1"`
	QueueSize          int     `yaml:"queue_size" default:"100" validate:"min=1"`
	MaxRetries         int     `yaml:"max_retries" default:"3" validate:"min=1"`
	BackoffBaseMs      int     `yaml:"backoff_base_ms" default:"500" validate:"min=1"`
	RatePerSecond      float64 `yaml:"rate_per_second" default:"25" validate:"gt=0"`
	Burst              int     `yaml:"burst" default:"5" validate:"min=1"`
}

type Alerts struct {
	CheckIntervalSeconds   int `yaml:"check_interval_seconds" default:"60" validate:"min=1"`
	FirstDelaySeconds      int `yaml:"first_delay_seconds" default:"10" validate:"min=0"`
	DefaultIntervalSeconds int `yaml:"default_interval_seconds" default:"60" validate:"min=1"`
}

type Redis struct {
	Addr      string `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" default:"0" validate:"min=0"`
	KeyPrefix string `yaml:"key_prefix" default:"pricealerts:"`
}

type Store struct {
	Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	Redis   Redis  `yaml:"redis"`
}

type Kafka struct {
	Enabled             bool     `yaml:"enabled"`
	Brokers             []string `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic               string   `yaml:"topic" default:"alerts.triggered" validate:"required"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds" default:"10" validate:"min=1"`
}

// Outbox journals triggered alerts to a local JSONL file; empty path disables it
type Outbox struct {
	Path string `yaml:"path"`
}

type Server struct {
	Enabled                bool `yaml:"enabled" default:"true"`
	Port                   int  `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ShutdownTimeoutSeconds int  `yaml:"shutdown_timeout_seconds" default:"10" validate:"min=1"`
}

type Root struct {
	Log      observ.LogConfig      `yaml:"log"`
	Quotes   adapters.QuotesConfig `yaml:"quotes"`
	Telegram Telegram              `yaml:"telegram"`
	Alerts   Alerts                `yaml:"alerts"`
	Store    Store                 `yaml:"store"`
	Kafka    Kafka                 `yaml:"kafka"`
	Outbox   Outbox                `yaml:"outbox"`
	Server   Server                `yaml:"server"`
}

var validate = validator.New()

// Load reads path (optional) over struct defaults, applies a .env file if one
// is present and then environment overrides, and validates the result.
func Load(path string) (Root, error) {
	var c Root
	if err := defaults.Set(&c); err != nil {
		return c, fmt.Errorf("set defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&c); err != nil {
		return c, err
	}

	if err := validate.Struct(c); err != nil {
		return c, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// applyEnv resolves secrets and deployment overrides from the environment
func applyEnv(c *Root) error {
	av := &c.Quotes.Providers.AlphaVantage
	if av.APIKeyEnv != "" {
		av.APIKey = os.Getenv(av.APIKeyEnv)
	}
	if c.Telegram.TokenEnv != "" {
		c.Telegram.Token = os.Getenv(c.Telegram.TokenEnv)
	}

	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Telegram.WebhookURL = v
		c.Telegram.Transport = "webhook"
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
		c.Store.Backend = "redis"
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
