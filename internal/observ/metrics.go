package observ

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pricealerts"

var (
	quoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_requests_total",
		Help:      "Quote fetches by asset class and outcome",
	}, []string{"class", "outcome"})

	quoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_errors_total",
		Help:      "Failed quote fetches by error type",
	}, []string{"type"})

	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quote_cache_events_total",
		Help:      "Result cache hits, misses, evictions and stores",
	}, []string{"class", "event"})

	cacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quote_cache_size",
		Help:      "Symbols currently held in the result cache",
	})

	upstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_calls_total",
		Help:      "HTTP calls to the quote provider by result",
	}, []string{"function", "result"})

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_latency_seconds",
		Help:      "Latency of quote provider calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"function"})

	quotaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_decisions_total",
		Help:      "Quota admission decisions",
	}, []string{"decision"})

	quotaUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "provider_budget_used",
		Help:      "Upstream calls inside each quota window",
	}, []string{"window"})

	quotaWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "quota_wait_seconds",
		Help:      "Time spent waiting for the per-minute window to open",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60},
	})

	alertsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_evaluated_total",
		Help:      "Alert checks by result",
	}, []string{"result"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Chat messages by result",
	}, []string{"result"})

	botCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bot_commands_total",
		Help:      "Chat commands handled by command name",
	}, []string{"command"})

	httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP API latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func RecordQuoteRequest(class, outcome string) {
	quoteRequests.WithLabelValues(class, outcome).Inc()
}

func RecordQuoteError(errType string) {
	if errType == "" {
		return
	}
	quoteErrors.WithLabelValues(errType).Inc()
}

// RecordCacheEvent counts hit, miss, evict and store events
func RecordCacheEvent(class, event string) {
	cacheEvents.WithLabelValues(class, event).Inc()
}

func SetCacheSize(n int) {
	cacheSize.Set(float64(n))
}

func RecordUpstreamCall(function, result string, latency time.Duration) {
	upstreamCalls.WithLabelValues(function, result).Inc()
	upstreamLatency.WithLabelValues(function).Observe(latency.Seconds())
}

func RecordQuotaDecision(decision string) {
	quotaDecisions.WithLabelValues(decision).Inc()
}

// SetQuotaUsage publishes window occupancy after each admission
func SetQuotaUsage(minute, day int) {
	quotaUsed.WithLabelValues("minute").Set(float64(minute))
	quotaUsed.WithLabelValues("day").Set(float64(day))
}

func RecordQuotaWait(d time.Duration) {
	quotaWait.Observe(d.Seconds())
}

func RecordAlertEvaluation(result string) {
	alertsEvaluated.WithLabelValues(result).Inc()
}

func RecordNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

func RecordBotCommand(command string) {
	botCommands.WithLabelValues(command).Inc()
}

func RecordHTTPRequest(method, route, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Observe(d.Seconds())
}
