package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

// Recover turns a handler panic into a 500
func Recover() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					observ.Error("http_panic", err, map[string]any{
						"route": c.Path(),
						"stack": string(debug.Stack()),
					})
					_ = c.JSON(http.StatusInternalServerError, APIResponse{
						Status:  http.StatusInternalServerError,
						Message: http.StatusText(http.StatusInternalServerError),
					})
				}
			}()
			return next(c)
		}
	}
}

// RequestLogging logs each request and records latency by route template
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// let echo write the error so the status below is final
				c.Error(err)
			}

			latency := time.Since(start)
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			observ.RecordHTTPRequest(c.Request().Method, route, strconv.Itoa(status), latency)

			kv := map[string]any{
				"method":     c.Request().Method,
				"route":      route,
				"status":     status,
				"latency_ms": latency.Milliseconds(),
			}
			if status >= 500 {
				observ.Warn("http_request", kv)
			} else {
				observ.Debug("http_request", kv)
			}
			return nil
		}
	}
}
