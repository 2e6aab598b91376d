package adapters

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultHistoryDays is the window used by chart summaries
const DefaultHistoryDays = 30

// Analytics derives prices and averages from fetched series
type Analytics struct {
	source SeriesSource
}

// NewAnalytics wraps a series source
func NewAnalytics(source SeriesSource) *Analytics {
	return &Analytics{source: source}
}

// CurrentPrice returns the close at the latest date
func (a *Analytics) CurrentPrice(ctx context.Context, symbol string) Result[float64] {
	res := a.source.Fetch(ctx, symbol)
	if !res.OK() {
		return propagate[float64](res)
	}
	latest, ok := res.Value.Latest()
	if !ok {
		return notFound[float64](NewBadSymbolError(symbol, "no data points returned"))
	}
	return success(latest.Close.InexactFloat64())
}

// MovingAverage is the mean of the last days closes. A shorter series
// averages whatever is available.
func (a *Analytics) MovingAverage(ctx context.Context, symbol string, days int) Result[float64] {
	if days < 1 {
		return invalid[float64](NewBadRequestError(symbol, fmt.Sprintf("days must be positive, got %d", days)))
	}
	res := a.source.Fetch(ctx, symbol)
	if !res.OK() {
		return propagate[float64](res)
	}
	window := res.Value.Tail(days)
	if len(window) == 0 {
		return notFound[float64](NewBadSymbolError(symbol, "no data points returned"))
	}

	sum := decimal.Zero
	for _, bar := range window {
		sum = sum.Add(bar.Close)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(window))))
	return success(mean.InexactFloat64())
}

// History returns the last days bars in ascending order as a fresh slice
func (a *Analytics) History(ctx context.Context, symbol string, days int) Result[[]Bar] {
	if days < 1 {
		return invalid[[]Bar](NewBadRequestError(symbol, fmt.Sprintf("days must be positive, got %d", days)))
	}
	res := a.source.Fetch(ctx, symbol)
	if !res.OK() {
		return propagate[[]Bar](res)
	}
	tail := res.Value.Tail(days)
	bars := make([]Bar, len(tail))
	copy(bars, tail)
	return success(bars)
}
