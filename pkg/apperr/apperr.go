// Package apperr defines the error kinds surfaced to API clients.
//
// Services return *Error values (or wrap them with %w); the HTTP boundary
// turns any error into a status code plus a stable "kind" string via KindOf.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error category sent in every error response.
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindValidation        Kind = "ValidationError"
	KindInsufficientStock Kind = "InsufficientStock"
	KindForbidden         Kind = "Forbidden"
	KindInvalidState      Kind = "InvalidState"
	KindUnauthorized      Kind = "Unauthorized"
	KindConflict          Kind = "Conflict"
	KindRateLimited       Kind = "RateLimited"
	KindMethodNotAllowed  Kind = "MethodNotAllowed"
	KindUnavailable       Kind = "Unavailable"
	KindInternal          Kind = "Internal"
)

// Error is a categorised application error.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field messages for validation failures.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, apperr.NotFound("")) style
// comparisons work against any message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newErr(KindNotFound, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return newErr(KindValidation, format, args...)
}

// ValidationFields builds a ValidationError carrying a field → message map.
func ValidationFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

func InsufficientStock(format string, args ...interface{}) *Error {
	return newErr(KindInsufficientStock, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newErr(KindForbidden, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return newErr(KindInvalidState, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newErr(KindUnauthorized, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newErr(KindConflict, format, args...)
}

// Internal wraps an unexpected failure. The cause is kept for logging and
// never shown to clients.
func Internal(err error, format string, args ...interface{}) *Error {
	e := newErr(KindInternal, format, args...)
	e.Err = err
	return e
}

// Wrap attaches a cause to a categorised error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	e := newErr(kind, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HTTPStatus maps a kind onto its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindInsufficientStock, KindInvalidState:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
