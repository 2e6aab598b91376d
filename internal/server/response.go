package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
)

// APIResponse is the envelope for every JSON body
type APIResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError describes one rejected input
type ValidationError struct {
	Code    string         `json:"code,omitempty"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

func dataResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func successResponse(c echo.Context, data any) error {
	return dataResponse(c, http.StatusOK, data)
}

func badRequestResponse(c echo.Context, errs []ValidationError) error {
	return dataResponse(c, http.StatusBadRequest, errs)
}

// outcomeResponse maps a failed quote result onto an HTTP status
func outcomeResponse[T any](c echo.Context, res adapters.Result[T]) error {
	switch res.Outcome {
	case adapters.OutcomeRateLimited:
		msg := res.Message
		if msg == "" {
			msg = adapters.DailyLimitMessage
		}
		return dataResponse(c, http.StatusTooManyRequests, []ValidationError{{Code: "ERR_RATE_LIMITED", Message: msg}})
	case adapters.OutcomeInvalid:
		return dataResponse(c, http.StatusBadRequest, []ValidationError{{Code: "ERR_INVALID", Message: "invalid request"}})
	default:
		return dataResponse(c, http.StatusNotFound, []ValidationError{{Code: "ERR_NOT_FOUND", Message: "Invalid symbol or API error."}})
	}
}

var validate = validator.New()

// readAndValidateRequest fills defaults, binds path and query parameters over
// them and validates. Defaults go first so an explicit zero still reaches the
// validator. A nil result means req is ready to use.
func readAndValidateRequest(c echo.Context, req any) []ValidationError {
	if err := defaults.Set(req); err != nil {
		return validationErrors(err)
	}
	if err := c.Bind(req); err != nil {
		return validationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validationErrors(err)
	}
	return nil
}

func validationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ValidationError, 0, len(verrs))
		for _, e := range verrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(e.Tag()),
				Field:   e.Field(),
				Message: errorMessage(e),
				Params:  errorParams(e),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

func errorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func errorParams(fe validator.FieldError) map[string]any {
	switch fe.Tag() {
	case "min":
		return map[string]any{"min": fe.Param()}
	case "max":
		return map[string]any{"max": fe.Param()}
	}
	return nil
}
