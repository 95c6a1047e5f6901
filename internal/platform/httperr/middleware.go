package httperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware returns an Echo middleware that renders structured errors as JSON.
// Echo's own HTTPErrors pass through unchanged so their status codes survive.
// counter may be nil.
func Middleware(counter *prometheus.CounterVec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				record(counter, FromHTTPError(httpErr))
				return err
			}

			structured := From(err)
			record(counter, structured)
			logError(c, structured)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(structured.Status(), structured.Response()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func record(counter *prometheus.CounterVec, err *Error) {
	if counter != nil {
		counter.WithLabelValues(string(err.Type)).Inc()
	}
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.Status(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case TypeInternal, TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "error", err.Cause)
		}
		slog.ErrorContext(c.Request().Context(), "HTTP request failed", attrs...)
	default:
		slog.InfoContext(c.Request().Context(), "HTTP request rejected", attrs...)
	}
}

// FromHTTPError converts Echo's HTTPError to a structured error.
func FromHTTPError(httpErr *echo.HTTPError) *Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var t Type
	switch httpErr.Code {
	case http.StatusBadRequest:
		t = TypeValidation
	case http.StatusUnauthorized:
		t = TypeUnauthorized
	case http.StatusForbidden:
		t = TypeForbidden
	case http.StatusNotFound:
		t = TypeNotFound
	case http.StatusTooManyRequests:
		t = TypeRateLimited
	case http.StatusServiceUnavailable:
		t = TypeUnavailable
	default:
		t = TypeInternal
	}

	return &Error{Type: t, Message: message, Cause: httpErr.Internal}
}
