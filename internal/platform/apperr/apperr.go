// Package apperr defines the error kinds surfaced by the API and their
// mapping to HTTP status codes. Services return *Error values (optionally
// wrapped with fmt.Errorf and %w); the HTTP error handler unwraps them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindInvalidRequest    Kind = "invalid_request"
	KindNotFound          Kind = "not_found"
	KindDoctorUnavailable Kind = "doctor_unavailable"
	KindSlotConflict      Kind = "slot_conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindRateLimited       Kind = "rate_limited"
	KindInternal          Kind = "internal"
)

// FieldError describes a single violated rule on an input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed error returned by services.
type Error struct {
	Kind        Kind
	Message     string
	FieldErrors []FieldError
	Details     map[string]any
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDoctorUnavailable, KindSlotConflict, KindConflict:
		return http.StatusConflict
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WithCause attaches an underlying error without changing the public message.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func Validation(fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", FieldErrors: fields}
}

func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity, e.g. NotFound("patient").
func NotFound(entity string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: entity + " not found",
		Details: map[string]any{"entity": entity},
	}
}

func DoctorUnavailable(reason string) *Error {
	return &Error{Kind: KindDoctorUnavailable, Message: "doctor unavailable: " + reason}
}

func SlotConflict(message string) *Error {
	return &Error{Kind: KindSlotConflict, Message: message}
}

// InvalidTransition reports a rejected status change.
func InvalidTransition(current, requested string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", current, requested),
		Details: map[string]any{"current": current, "requested": requested},
	}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", cause: err}
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// KindOf returns the kind of err, or KindInternal when err is untyped.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}
