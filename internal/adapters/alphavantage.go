package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

const (
	DefaultBaseURL = "https://www.alphavantage.co"
	dateLayout     = "2006-01-02"
	maxBodyBytes   = 8 << 20
)

// AlphaVantageConfig holds configuration for the Alpha Vantage fetcher
type AlphaVantageConfig struct {
	APIKey                string
	BaseURL               string
	RateLimitPerMinute    int
	DailyCap              int
	EquityCacheTTLSeconds int
	CryptoCacheTTLSeconds int
	StaleAfterDays        int
	TimeoutSeconds        int
	MaxRetries            int
	BackoffBaseMs         int
}

// endpoint describes how one asset class is requested and decoded
type endpoint struct {
	function   string
	seriesKey  string
	closeField string
	params     url.Values
}

func endpointFor(class AssetClass) endpoint {
	switch class {
	case ClassCrypto:
		return endpoint{
			function:   "DIGITAL_CURRENCY_DAILY",
			seriesKey:  "Time Series (Digital Currency Daily)",
			closeField: "4a. close (USD)",
			params:     url.Values{"market": {"USD"}},
		}
	default:
		return endpoint{
			function:   "TIME_SERIES_DAILY",
			seriesKey:  "Time Series (Daily)",
			closeField: "4. close",
		}
	}
}

// Option customises an AlphaVantageAdapter
type Option func(*AlphaVantageAdapter)

// WithTransport replaces the HTTP transport, keeping the configured timeout
func WithTransport(rt http.RoundTripper) Option {
	return func(av *AlphaVantageAdapter) {
		av.httpClient.Transport = rt
	}
}

// WithClock injects the clock used by the cache, quota and staleness check
func WithClock(c Clock) Option {
	return func(av *AlphaVantageAdapter) {
		av.clock = c
	}
}

// WithSleeper injects the sleeper used for backoff and quota waits
func WithSleeper(s Sleeper) Option {
	return func(av *AlphaVantageAdapter) {
		av.sleep = s
	}
}

// AlphaVantageAdapter is the quote fetcher: it serves daily series from the
// result cache, and on a miss spends quota on an upstream call with retry,
// validates the payload and rejects stale data before caching it.
type AlphaVantageAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	quota      *QuotaTracker
	cache      *ResultCache
	config     AlphaVantageConfig
	clock      Clock
	sleep      Sleeper
}

// NewAlphaVantageAdapter creates a new Alpha Vantage fetcher
func NewAlphaVantageAdapter(config AlphaVantageConfig, opts ...Option) (*AlphaVantageAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Alpha Vantage API key is required")
	}

	// Set defaults
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 5 // Free tier limit
	}
	if config.DailyCap <= 0 {
		config.DailyCap = 25 // Free tier daily limit
	}
	if config.EquityCacheTTLSeconds <= 0 {
		config.EquityCacheTTLSeconds = 1800
	}
	if config.CryptoCacheTTLSeconds <= 0 {
		config.CryptoCacheTTLSeconds = 60
	}
	if config.StaleAfterDays <= 0 {
		config.StaleAfterDays = 2
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBaseMs <= 0 {
		config.BackoffBaseMs = 1000
	}

	av := &AlphaVantageAdapter{
		apiKey:  config.APIKey,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		config: config,
		clock:  SystemClock,
		sleep:  ContextSleep,
	}
	for _, opt := range opts {
		opt(av)
	}

	av.quota = NewQuotaTracker(config.RateLimitPerMinute, config.DailyCap, av.clock, av.sleep)
	av.cache = NewResultCache(
		time.Duration(config.EquityCacheTTLSeconds)*time.Second,
		time.Duration(config.CryptoCacheTTLSeconds)*time.Second,
		av.clock,
	)
	return av, nil
}

// Fetch returns the daily series for symbol, from cache when fresh
func (av *AlphaVantageAdapter) Fetch(ctx context.Context, symbol string) Result[*TimeSeries] {
	symbol = NormalizeSymbol(symbol)
	if err := ValidateSymbol(symbol); err != nil {
		return invalid[*TimeSeries](NewBadSymbolError(symbol, err.Error()))
	}
	class := Classify(symbol)

	if series, ok := av.cache.Lookup(symbol); ok {
		observ.Debug("quote_cache_hit", map[string]any{"symbol": symbol})
		observ.RecordQuoteRequest(class.String(), "cache_hit")
		return success(series)
	}

	res := av.fetchSeries(ctx, symbol, class)
	observ.RecordQuoteRequest(class.String(), res.Outcome.String())
	observ.RecordQuoteError(errorType(res.Err))
	if !res.OK() {
		return res
	}

	av.cache.Store(symbol, res.Value)
	return res
}

// Usage exposes quota occupancy for health and status reporting
func (av *AlphaVantageAdapter) Usage() QuotaUsage {
	return av.quota.Usage()
}

// CacheMetrics exposes result cache counters
func (av *AlphaVantageAdapter) CacheMetrics() CacheMetrics {
	return av.cache.Metrics()
}

// fetchSeries runs the admission, retry and validation sequence for one miss
func (av *AlphaVantageAdapter) fetchSeries(ctx context.Context, symbol string, class AssetClass) Result[*TimeSeries] {
	ep := endpointFor(class)
	requestURL := av.requestURL(symbol, ep)

	var lastErr error
	for attempt := 0; attempt < av.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(av.config.BackoffBaseMs*(1<<(attempt-1))) * time.Millisecond
			observ.Warn("quote_fetch_retry", map[string]any{
				"symbol":     symbol,
				"attempt":    attempt + 1,
				"backoff_ms": backoff.Milliseconds(),
				"last_error": lastErr.Error(),
			})
			if err := av.sleep(ctx, backoff); err != nil {
				return notFound[*TimeSeries](NewNetworkError(symbol, "retry wait cancelled", err))
			}
		}

		decision, err := av.quota.Acquire(ctx)
		if err != nil {
			return notFound[*TimeSeries](NewNetworkError(symbol, "quota wait cancelled", err))
		}
		if decision.Kind == DeniedDaily {
			observ.Error("quote_daily_limit_exceeded", nil, map[string]any{"symbol": symbol})
			return rateLimited[*TimeSeries](NewRateLimitError(symbol, "daily request cap reached"))
		}

		series, transient, err := av.callOnce(ctx, symbol, class, ep, requestURL)
		if err == nil {
			return av.checkStaleness(symbol, series)
		}
		if !transient {
			observ.Error("quote_fetch_rejected", err, map[string]any{"symbol": symbol})
			return notFound[*TimeSeries](err)
		}
		lastErr = err
	}

	observ.Error("quote_fetch_retries_exhausted", lastErr, map[string]any{
		"symbol":   symbol,
		"attempts": av.config.MaxRetries,
	})
	return notFound[*TimeSeries](lastErr)
}

// callOnce performs a single HTTP request. transient is true only for
// connection-level failures; any response the provider actually sent is final.
func (av *AlphaVantageAdapter) callOnce(ctx context.Context, symbol string, class AssetClass, ep endpoint, requestURL string) (series *TimeSeries, transient bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, false, NewProviderError(symbol, "failed to create request", err)
	}

	observ.Debug("quote_fetch_request", map[string]any{
		"symbol":   symbol,
		"function": ep.function,
	})

	start := time.Now()
	resp, err := av.httpClient.Do(req)
	if err != nil {
		observ.RecordUpstreamCall(ep.function, "transient", time.Since(start))
		return nil, true, NewNetworkError(symbol, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		observ.RecordUpstreamCall(ep.function, "transient", time.Since(start))
		return nil, true, NewNetworkError(symbol, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		observ.RecordUpstreamCall(ep.function, "structural", time.Since(start))
		return nil, false, NewProviderError(symbol, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)), nil)
	}

	series, err = parseSeriesResponse(body, symbol, class, ep)
	if err != nil {
		observ.RecordUpstreamCall(ep.function, "structural", time.Since(start))
		return nil, false, err
	}

	observ.RecordUpstreamCall(ep.function, "ok", time.Since(start))
	return series, false, nil
}

// checkStaleness rejects series whose latest bar is too many calendar days old
func (av *AlphaVantageAdapter) checkStaleness(symbol string, series *TimeSeries) Result[*TimeSeries] {
	latest, _ := series.Latest()
	today := startOfDay(av.clock.Now())
	age := today.Sub(latest.Date)
	if age > time.Duration(av.config.StaleAfterDays)*24*time.Hour {
		observ.Warn("quote_data_stale", map[string]any{
			"symbol":      symbol,
			"latest_date": latest.Date.Format(dateLayout),
		})
		return notFound[*TimeSeries](NewStaleError(symbol, latest.Date, age))
	}
	return success(series)
}

func (av *AlphaVantageAdapter) requestURL(symbol string, ep endpoint) string {
	params := url.Values{
		"function": {ep.function},
		"symbol":   {symbol},
		"apikey":   {av.apiKey},
	}
	for k, v := range ep.params {
		params[k] = v
	}
	return av.baseURL + "/query?" + params.Encode()
}

// parseSeriesResponse decodes a daily series payload. A missing series key
// means the provider answered with an error or throttle note instead of data.
func parseSeriesResponse(body []byte, symbol string, class AssetClass, ep endpoint) (*TimeSeries, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, NewProviderError(symbol, "failed to parse response", err)
	}

	raw, ok := payload[ep.seriesKey]
	if !ok {
		if msg := providerMessage(payload); msg != "" {
			return nil, NewProviderError(symbol, msg, nil)
		}
		return nil, NewBadSymbolError(symbol, fmt.Sprintf("response has no %q", ep.seriesKey))
	}

	var records map[string]map[string]string
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, NewProviderError(symbol, "malformed series", err)
	}
	if len(records) == 0 {
		return nil, NewBadSymbolError(symbol, "no data points returned")
	}

	bars := make([]Bar, 0, len(records))
	for date, record := range records {
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, NewProviderError(symbol, fmt.Sprintf("bad date key %q", date), err)
		}
		closeStr, ok := record[ep.closeField]
		if !ok {
			return nil, NewProviderError(symbol, fmt.Sprintf("%s has no %q", date, ep.closeField), nil)
		}
		closePrice, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, NewProviderError(symbol, fmt.Sprintf("bad close on %s", date), err)
		}
		bars = append(bars, Bar{Date: d, Close: closePrice})
	}

	return NewTimeSeries(symbol, class, bars), nil
}

// providerMessage extracts the human-readable error Alpha Vantage sends with 200
func providerMessage(payload map[string]json.RawMessage) string {
	for _, key := range []string{"Error Message", "Note", "Information"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
			return msg
		}
	}
	return ""
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
