package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// MockTransport answers Alpha Vantage queries in-process with deterministic
// daily series, so the full fetch path runs without network access.
type MockTransport struct {
	Prices map[string]float64 // latest close per symbol; anything else is unknown
	Days   int
	Clock  Clock
}

// NewMockTransport creates a transport with a small fixed universe
func NewMockTransport(clock Clock) *MockTransport {
	if clock == nil {
		clock = SystemClock
	}
	return &MockTransport{
		Prices: map[string]float64{
			"AAPL": 206.80,
			"MSFT": 415.30,
			"NVDA": 450.00,
			"TSLA": 248.50,
			"BTC":  65000.00,
			"ETH":  3200.00,
			"USDT": 1.00,
		},
		Days:  100,
		Clock: clock,
	}
}

// RoundTrip implements http.RoundTripper
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	q := req.URL.Query()
	symbol := q.Get("symbol")
	class := Classify(symbol)
	ep := endpointFor(class)

	var payload map[string]any
	base, known := m.Prices[symbol]
	switch {
	case q.Get("function") != ep.function:
		payload = map[string]any{"Error Message": fmt.Sprintf("Invalid API call for function %s", q.Get("function"))}
	case !known:
		payload = map[string]any{"Error Message": "Invalid API call. Please retry or visit the documentation for " + q.Get("function") + "."}
	default:
		payload = map[string]any{
			"Meta Data":  map[string]string{"2. Symbol": symbol},
			ep.seriesKey: m.series(base, ep.closeField),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Header:        http.Header{"Content-Type": {"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// series walks back from today with a small repeating wobble so averages
// differ from the latest close
func (m *MockTransport) series(latest float64, closeField string) map[string]map[string]string {
	days := m.Days
	if days <= 0 {
		days = 100
	}
	today := startOfDay(m.Clock.Now())
	last := decimal.NewFromFloat(latest)
	out := make(map[string]map[string]string, days)
	for i := 0; i < days; i++ {
		date := today.Add(-time.Duration(i) * 24 * time.Hour)
		wobble := decimal.NewFromInt(int64((i*7)%11 - 5)).Div(decimal.NewFromInt(1000))
		price := last
		if i > 0 {
			price = last.Mul(decimal.NewFromInt(1).Add(wobble))
		}
		out[date.Format(dateLayout)] = map[string]string{closeField: price.StringFixed(4)}
	}
	return out
}
