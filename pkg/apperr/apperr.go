// Package apperr defines the typed error kinds used across every engine.
// Engines return an *AppError; the HTTP layer translates it to a status
// code and JSON body. Nothing below the HTTP layer should format a
// user-facing message directly.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the eight error kinds named by the error-handling design.
type Kind string

const (
	KindUnauthenticated      Kind = "unauthenticated"
	KindForbidden            Kind = "forbidden"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindValidation           Kind = "validation"
	KindRateLimited          Kind = "rate_limited"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindInternal             Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindUnauthenticated:     http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindConflict:            http.StatusConflict,
	KindValidation:          http.StatusBadRequest,
	KindRateLimited:         http.StatusTooManyRequests,
	KindUpstreamUnavailable: http.StatusServiceUnavailable,
	KindInternal:            http.StatusInternalServerError,
}

// AppError is the single error type engines raise and handlers translate.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// New builds an AppError of the given kind. Only the first details string
// is kept, verbatim; any further ones are ignored. The signature matches
// the teacher's NewAppError(code, msg, details...) convention.
func New(kind Kind, message string, details ...string) *AppError {
	err := &AppError{
		Kind:    kind,
		Code:    statusByKind[kind],
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

func Unauthenticated(msg string, details ...string) *AppError { return New(KindUnauthenticated, msg, details...) }
func Forbidden(msg string, details ...string) *AppError       { return New(KindForbidden, msg, details...) }
func NotFound(msg string, details ...string) *AppError        { return New(KindNotFound, msg, details...) }
func Conflict(msg string, details ...string) *AppError        { return New(KindConflict, msg, details...) }
func Validation(msg string, details ...string) *AppError      { return New(KindValidation, msg, details...) }
func RateLimited(msg string, details ...string) *AppError     { return New(KindRateLimited, msg, details...) }
func UpstreamUnavailable(msg string, details ...string) *AppError {
	return New(KindUpstreamUnavailable, msg, details...)
}
func Internal(msg string, details ...string) *AppError { return New(KindInternal, msg, details...) }

// Predefined instances for the most common cases, following the teacher's
// "predefined error vars" convention in pkg/errors.
var (
	ErrUnauthenticated = Unauthenticated("authentication required")
	ErrInvalidToken    = Unauthenticated("invalid or expired token")
	ErrForbidden       = Forbidden("access forbidden")
	ErrNotMember       = Forbidden("not a member of this conversation")
	ErrNotAdmin        = Forbidden("admin role required")
	ErrNotSender       = Forbidden("only the sender may perform this action")
	ErrNotFound        = NotFound("resource not found")
	ErrUserNotFound    = NotFound("user not found")
	ErrRateLimited     = RateLimited("too many requests")
	ErrInternal        = Internal("internal server error")
)

// HTTPStatus returns the status code an AppError should be reported as.
func (e *AppError) HTTPStatus() int {
	if e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

// Is reports whether err is an *AppError of the given kind.
func Is(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// As extracts the *AppError from err, wrapping unknown errors as Internal
// so callers never have to nil-check before reading .Code.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return &AppError{Kind: KindInternal, Code: http.StatusInternalServerError, Message: "internal server error", Details: err.Error()}
}
