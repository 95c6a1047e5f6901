// Package httperr maps failures on the HTTP surface (upgrade rejections,
// ops endpoints) to structured JSON responses.
package httperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the category of an HTTP-facing error, used for metrics and response formatting.
type Type string

const (
	TypeValidation   Type = "validation"
	TypeUnauthorized Type = "unauthorized"
	TypeForbidden    Type = "forbidden"
	TypeNotFound     Type = "not_found"
	TypeRateLimited  Type = "rate_limited"
	TypeUnavailable  Type = "unavailable"
	TypeInternal     Type = "internal"
)

// Error is a structured error with a type, a client-safe message and optional context.
type Error struct {
	Type    Type
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status code for the error type.
func (e *Error) Status() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// With adds a context field to the error (chainable).
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Response is the JSON body sent to clients.
type Response struct {
	Error   string         `json:"error"`
	Type    Type           `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) Response() Response {
	return Response{Error: e.Message, Type: e.Type, Context: e.Context}
}

func newError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func Validation(message string) *Error   { return newError(TypeValidation, message, nil) }
func Unauthorized(message string) *Error { return newError(TypeUnauthorized, message, nil) }
func Forbidden(message string) *Error    { return newError(TypeForbidden, message, nil) }
func NotFound(message string) *Error     { return newError(TypeNotFound, message, nil) }
func RateLimited(message string) *Error  { return newError(TypeRateLimited, message, nil) }

func Unavailable(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

func Internal(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// From converts any error into a structured Error. Unknown errors become internal errors
// with a generic message so causes never reach the client.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return Internal("internal server error", err)
}
