package server

import (
	"github.com/labstack/echo/v4"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
)

type symbolRequest struct {
	Symbol string `param:"symbol" validate:"required,max=15"`
}

type movingAverageRequest struct {
	Symbol string `param:"symbol" validate:"required,max=15"`
	Days   int    `query:"days" default:"7" validate:"min=1,max=100"`
}

type historyRequest struct {
	Symbol string `param:"symbol" validate:"required,max=15"`
	Days   int    `query:"days" default:"30" validate:"min=1,max=100"`
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type movingAverageResponse struct {
	Symbol  string  `json:"symbol"`
	Days    int     `json:"days"`
	Average float64 `json:"average"`
}

type historyResponse struct {
	Symbol string         `json:"symbol"`
	Days   int            `json:"days"`
	Bars   []adapters.Bar `json:"bars"`
}

type quotaResponse struct {
	Quota adapters.QuotaUsage   `json:"quota"`
	Cache adapters.CacheMetrics `json:"cache"`
}

// QuoteHandler serves prices, averages and history from the shared fetcher
type QuoteHandler struct {
	quotes Quotes
	quota  QuotaReporter
}

func NewQuoteHandler(quotes Quotes, quota QuotaReporter) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, quota: quota}
}

func (h *QuoteHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/quotes/:symbol/price", h.Price)
	g.GET("/quotes/:symbol/ma", h.MovingAverage)
	g.GET("/quotes/:symbol/history", h.History)
	if h.quota != nil {
		g.GET("/quota", h.Quota)
	}
}

func (h *QuoteHandler) Price(c echo.Context) error {
	req := &symbolRequest{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	symbol, verr := checkSymbol(req.Symbol)
	if verr != nil {
		return badRequestResponse(c, verr)
	}

	res := h.quotes.CurrentPrice(c.Request().Context(), symbol)
	if !res.OK() {
		return outcomeResponse(c, res)
	}
	return successResponse(c, priceResponse{Symbol: symbol, Price: res.Value})
}

func (h *QuoteHandler) MovingAverage(c echo.Context) error {
	req := &movingAverageRequest{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	symbol, verr := checkSymbol(req.Symbol)
	if verr != nil {
		return badRequestResponse(c, verr)
	}

	res := h.quotes.MovingAverage(c.Request().Context(), symbol, req.Days)
	if !res.OK() {
		return outcomeResponse(c, res)
	}
	return successResponse(c, movingAverageResponse{Symbol: symbol, Days: req.Days, Average: res.Value})
}

func (h *QuoteHandler) History(c echo.Context) error {
	req := &historyRequest{}
	if verr := readAndValidateRequest(c, req); verr != nil {
		return badRequestResponse(c, verr)
	}
	symbol, verr := checkSymbol(req.Symbol)
	if verr != nil {
		return badRequestResponse(c, verr)
	}

	res := h.quotes.History(c.Request().Context(), symbol, req.Days)
	if !res.OK() {
		return outcomeResponse(c, res)
	}
	return successResponse(c, historyResponse{Symbol: symbol, Days: req.Days, Bars: res.Value})
}

func (h *QuoteHandler) Quota(c echo.Context) error {
	return successResponse(c, quotaResponse{
		Quota: h.quota.Usage(),
		Cache: h.quota.CacheMetrics(),
	})
}

func checkSymbol(raw string) (string, []ValidationError) {
	symbol := adapters.NormalizeSymbol(raw)
	if err := adapters.ValidateSymbol(symbol); err != nil {
		return "", []ValidationError{{Code: "ERR_SYMBOL", Field: "Symbol", Message: err.Error()}}
	}
	return symbol, nil
}
