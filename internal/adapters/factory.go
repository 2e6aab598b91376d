package adapters

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

// QuotesConfig selects and tunes the quote source
type QuotesConfig struct {
	Adapter   string                `yaml:"adapter" default:"alphavantage" validate:"oneof=mock alphavantage"`
	Providers QuotesProviderConfigs `yaml:"providers"`
}

// QuotesProviderConfigs holds provider-specific configurations
type QuotesProviderConfigs struct {
	AlphaVantage AlphaVantageProviderConfig `yaml:"alphavantage"`
}

// AlphaVantageProviderConfig is the YAML view of AlphaVantageConfig
type AlphaVantageProviderConfig struct {
	APIKey                string `yaml:"-"`
	APIKeyEnv             string `yaml:"api_key_env" default:"ALPHA_VANTAGE_API_KEY"`
	BaseURL               string `yaml:"base_url" default:"https://www.alphavantage.co" validate:"url"`
	RateLimitPerMinute    int    `yaml:"rate_limit_per_minute" default:"5" validate:"min=1"`
	DailyCap              int    `yaml:"daily_cap" default:"25" validate:"min=1"`
	EquityCacheTTLSeconds int    `yaml:"equity_cache_ttl_seconds" default:"1800" validate:"min=1"`
	CryptoCacheTTLSeconds int    `yaml:"crypto_cache_ttl_seconds" default:"60" validate:"min=1"`
	StaleAfterDays        int    `yaml:"stale_after_days" default:"2" validate:"min=1"`
	TimeoutSeconds        int    `yaml:"timeout_seconds" default:"10" validate:"min=1"`
	MaxRetries            int    `yaml:"max_retries" default:"3" validate:"min=1,max=10"`
	BackoffBaseMs         int    `yaml:"backoff_base_ms" default:"1000" validate:"min=1"`
}

// NewFetcher builds the quote fetcher. Only an explicit mock adapter (in
// config or via QUOTES=mock) routes it through MockTransport; the real
// adapter refuses to start without an API key.
func NewFetcher(config QuotesConfig, opts ...Option) (*AlphaVantageAdapter, error) {
	adapter := strings.ToLower(strings.TrimSpace(config.Adapter))

	// Check for environment variable override
	if envAdapter := os.Getenv("QUOTES"); envAdapter != "" {
		adapter = strings.ToLower(strings.TrimSpace(envAdapter))
		observ.Log("quotes_adapter_override", map[string]any{
			"config_adapter": config.Adapter,
			"env_override":   adapter,
		})
	}

	pc := config.Providers.AlphaVantage
	apiKey := pc.APIKey
	if apiKey == "" && pc.APIKeyEnv != "" {
		apiKey = os.Getenv(pc.APIKeyEnv)
	}

	avConfig := AlphaVantageConfig{
		APIKey:                apiKey,
		BaseURL:               pc.BaseURL,
		RateLimitPerMinute:    pc.RateLimitPerMinute,
		DailyCap:              pc.DailyCap,
		EquityCacheTTLSeconds: pc.EquityCacheTTLSeconds,
		CryptoCacheTTLSeconds: pc.CryptoCacheTTLSeconds,
		StaleAfterDays:        pc.StaleAfterDays,
		TimeoutSeconds:        pc.TimeoutSeconds,
		MaxRetries:            pc.MaxRetries,
		BackoffBaseMs:         pc.BackoffBaseMs,
	}

	switch {
	case adapter == "mock":
		return newMockFetcher(avConfig, "deterministic testing", opts)
	case adapter != "alphavantage":
		return nil, fmt.Errorf("unknown quotes adapter %q (want mock or alphavantage)", adapter)
	case apiKey == "":
		return nil, fmt.Errorf("alpha vantage API key is required (set %s, or use adapter mock)", keyEnvName(pc.APIKeyEnv))
	}

	av, err := NewAlphaVantageAdapter(avConfig, opts...)
	if err != nil {
		return nil, err
	}
	observ.Log("quotes_adapter_created", map[string]any{
		"type":           "alphavantage",
		"rate_limit_pm":  av.config.RateLimitPerMinute,
		"daily_cap":      av.config.DailyCap,
		"stale_days":     av.config.StaleAfterDays,
		"api_key_masked": maskAPIKey(apiKey),
	})
	return av, nil
}

func newMockFetcher(config AlphaVantageConfig, reason string, opts []Option) (*AlphaVantageAdapter, error) {
	config.APIKey = "demo"
	scratch := &AlphaVantageAdapter{clock: SystemClock, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(scratch)
	}
	opts = append(opts, WithTransport(NewMockTransport(scratch.clock)))

	av, err := NewAlphaVantageAdapter(config, opts...)
	if err != nil {
		return nil, err
	}
	observ.Log("quotes_adapter_created", map[string]any{
		"type":   "mock",
		"reason": reason,
	})
	return av, nil
}

func keyEnvName(env string) string {
	if env == "" {
		return "ALPHA_VANTAGE_API_KEY"
	}
	return env
}

// maskAPIKey masks API key for logging
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:4] + "****" + apiKey[len(apiKey)-4:]
}
