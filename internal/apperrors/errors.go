/*
Package apperrors holds the error taxonomy shared by the lending packages.

ERROR KINDS:
  - ErrValidation:    bad input or a broken domain invariant (bad year,
                      non-positive copies, blank name, malformed email,
                      fine ceiling breach)
  - ErrUnavailable:   no copies left of an item; may succeed after a return
  - ErrQuotaExceeded: borrower not eligible (loan limit or fine ceiling)
  - ErrNotFound:      unknown borrower or item
  - ErrRateLimited:   registration throttled

Packages wrap the sentinels with context; callers test with errors.Is.
*/
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrUnavailable   = errors.New("item unavailable")
	ErrQuotaExceeded = errors.New("borrower not eligible")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limit exceeded")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the kind and id of the missing record.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// IsClientError reports whether err was caused by the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrRateLimited)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the same call may succeed later without
// changing the request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrQuotaExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
