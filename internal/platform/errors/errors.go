// Package errors carries the coded error taxonomy used across the service.
//
// Codes map one-to-one onto the failure classes callers care about:
// unauthorized (a guard refused the actor), conflict (an action was attempted
// from a state that does not allow it, or a concurrent update won the race),
// invalid_input (malformed request data), not_found, and internal
// (storage-layer failure, rolled back in full).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and caller branching.
type Code string

const (
	ErrCodeUnauthorized Code = "unauthorized"
	ErrCodeConflict     Code = "conflict"
	ErrCodeInvalidInput Code = "invalid_input"
	ErrCodeNotFound     Code = "not_found"
	ErrCodeInternal     Code = "internal"
)

// Error is a coded error. The wrapped cause, if any, is reachable via
// errors.Unwrap for logging; the Message is safe to surface to callers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New returns a coded error with the given message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// InvalidInput reports a malformed field.
func InvalidInput(field, reason string) error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// CodeOf extracts the code from an error chain, defaulting to internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MessageOf returns the caller-safe message from an error chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a coded error onto an HTTP status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
