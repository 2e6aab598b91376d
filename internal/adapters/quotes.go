package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SeriesSource provides daily time series for a symbol
type SeriesSource interface {
	Fetch(ctx context.Context, symbol string) Result[*TimeSeries]
}

// Bar is a single daily record from the provider
type Bar struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// TimeSeries is a symbol's daily history sorted by ascending date.
// Series handed out by the fetcher are shared with the cache and must be
// treated as read-only.
type TimeSeries struct {
	Symbol string     `json:"symbol"`
	Class  AssetClass `json:"class"`
	Bars   []Bar      `json:"bars"`
}

// NewTimeSeries sorts bars by date and drops nothing
func NewTimeSeries(symbol string, class AssetClass, bars []Bar) *TimeSeries {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return &TimeSeries{Symbol: symbol, Class: class, Bars: bars}
}

// Len returns the number of bars
func (ts *TimeSeries) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.Bars)
}

// Latest returns the bar with the maximum date
func (ts *TimeSeries) Latest() (Bar, bool) {
	if ts.Len() == 0 {
		return Bar{}, false
	}
	return ts.Bars[len(ts.Bars)-1], true
}

// Tail returns the most recent n bars in ascending order. n larger than the
// series returns the whole series.
func (ts *TimeSeries) Tail(n int) []Bar {
	if n <= 0 || ts.Len() == 0 {
		return nil
	}
	if n > len(ts.Bars) {
		n = len(ts.Bars)
	}
	return ts.Bars[len(ts.Bars)-n:]
}

// Outcome is the kind of result a quote operation produced
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeNotFound
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// DailyLimitMessage is shown to users when the daily budget is spent
const DailyLimitMessage = "Daily API limit exceeded. Please try again tomorrow."

// Result carries either a value or the reason there is none. Callers branch on
// Outcome; Err holds detail for logs.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Message string
	Err     error
}

// OK reports whether the result carries a value
func (r Result[T]) OK() bool {
	return r.Outcome == OutcomeSuccess
}

func success[T any](v T) Result[T] {
	return Result[T]{Outcome: OutcomeSuccess, Value: v}
}

func rateLimited[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeRateLimited, Message: DailyLimitMessage, Err: err}
}

func notFound[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeNotFound, Err: err}
}

func invalid[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeInvalid, Err: err}
}

// propagate converts a failed result to another value type
func propagate[T, U any](r Result[U]) Result[T] {
	return Result[T]{Outcome: r.Outcome, Message: r.Message, Err: r.Err}
}

// QuoteError represents different types of quote fetch errors
type QuoteError struct {
	Type    string // "network", "rate_limit", "provider_error", "bad_symbol", "stale", "bad_request"
	Symbol  string
	Message string
	Cause   error
}

func (e *QuoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Type, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Type, e.Symbol, e.Message)
}

func (e *QuoteError) Unwrap() error {
	return e.Cause
}

// Common error constructors
func NewNetworkError(symbol, message string, cause error) *QuoteError {
	return &QuoteError{Type: "network", Symbol: symbol, Message: message, Cause: cause}
}

func NewRateLimitError(symbol, message string) *QuoteError {
	return &QuoteError{Type: "rate_limit", Symbol: symbol, Message: message}
}

func NewProviderError(symbol, message string, cause error) *QuoteError {
	return &QuoteError{Type: "provider_error", Symbol: symbol, Message: message, Cause: cause}
}

func NewBadSymbolError(symbol, message string) *QuoteError {
	return &QuoteError{Type: "bad_symbol", Symbol: symbol, Message: message}
}

func NewStaleError(symbol string, latest time.Time, age time.Duration) *QuoteError {
	return &QuoteError{
		Type:    "stale",
		Symbol:  symbol,
		Message: fmt.Sprintf("latest bar %s is %v old", latest.Format(dateLayout), age),
	}
}

func NewBadRequestError(symbol, message string) *QuoteError {
	return &QuoteError{Type: "bad_request", Symbol: symbol, Message: message}
}

// errorType extracts the QuoteError type for metric labels
func errorType(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuoteError
	if errors.As(err, &qe) {
		return qe.Type
	}
	return "unknown"
}
