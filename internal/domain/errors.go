// Package domain provides the canonical error taxonomy for the gateway.
// Route handlers return these errors and the terminal error handler maps
// them to the uniform response envelope.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a gateway error.
type ErrorKind string

const (
	// ErrorKindValidation indicates a malformed or invalid request.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindUnauthorized indicates missing or failed authentication.
	ErrorKindUnauthorized ErrorKind = "unauthorized"

	// ErrorKindForbidden indicates an authorization failure.
	ErrorKindForbidden ErrorKind = "forbidden"

	// ErrorKindNotFound indicates a resource or route was not found.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindConflict indicates a state conflict (duplicate, stale write).
	ErrorKindConflict ErrorKind = "conflict"

	// ErrorKindRateLimit indicates the caller exceeded its admission window.
	ErrorKindRateLimit ErrorKind = "rate_limit"

	// ErrorKindInternal is the fallback for anything unclassified.
	ErrorKindInternal ErrorKind = "internal"
)

// APIError is a classified error carrying everything the error handler needs
// to build a client-visible envelope.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

// Record is the resolved (status, code, message) triple for an error.
type Record struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
}

// taxonomy is the closed kind → (status, code) mapping.
var taxonomy = map[ErrorKind]struct {
	status int
	code   string
}{
	ErrorKindValidation:   {http.StatusBadRequest, "VALIDATION_ERROR"},
	ErrorKindUnauthorized: {http.StatusUnauthorized, "UNAUTHORIZED"},
	ErrorKindForbidden:    {http.StatusForbidden, "FORBIDDEN"},
	ErrorKindNotFound:     {http.StatusNotFound, "NOT_FOUND"},
	ErrorKindConflict:     {http.StatusConflict, "CONFLICT"},
	ErrorKindRateLimit:    {http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
	ErrorKindInternal:     {http.StatusInternalServerError, "INTERNAL_ERROR"},
}

// Resolve maps any error to its taxonomy record. Unknown errors resolve to
// the internal-error record; their message is never forwarded to clients.
func Resolve(err error) Record {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		entry, ok := taxonomy[apiErr.Kind]
		if !ok {
			entry = taxonomy[ErrorKindInternal]
		}
		rec := Record{
			Kind:       apiErr.Kind,
			StatusCode: entry.status,
			Code:       entry.code,
			Message:    apiErr.Message,
		}
		if apiErr.StatusCode != 0 {
			rec.StatusCode = apiErr.StatusCode
		}
		if apiErr.Code != "" {
			rec.Code = apiErr.Code
		}
		return rec
	}
	entry := taxonomy[ErrorKindInternal]
	return Record{
		Kind:       ErrorKindInternal,
		StatusCode: entry.status,
		Code:       entry.code,
		Message:    "An unexpected error occurred",
	}
}

func newError(kind ErrorKind, message string) *APIError {
	entry := taxonomy[kind]
	return &APIError{
		Kind:       kind,
		StatusCode: entry.status,
		Code:       entry.code,
		Message:    message,
	}
}

// ErrValidation creates a validation error (400).
func ErrValidation(message string) *APIError {
	return newError(ErrorKindValidation, message)
}

// ErrUnauthorized creates an authentication error (401).
func ErrUnauthorized(message string) *APIError {
	return newError(ErrorKindUnauthorized, message)
}

// ErrForbidden creates an authorization error (403).
func ErrForbidden(message string) *APIError {
	return newError(ErrorKindForbidden, message)
}

// ErrNotFound creates a not-found error (404).
func ErrNotFound(message string) *APIError {
	return newError(ErrorKindNotFound, message)
}

// ErrConflict creates a conflict error (409).
func ErrConflict(message string) *APIError {
	return newError(ErrorKindConflict, message)
}

// ErrRateLimit creates a rate-limit error (429).
func ErrRateLimit(message string) *APIError {
	return newError(ErrorKindRateLimit, message)
}

// ErrInternal creates an internal error (500).
func ErrInternal(message string) *APIError {
	return newError(ErrorKindInternal, message)
}

// WithCode overrides the taxonomy code for this error.
func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}

// WithStatusCode overrides the taxonomy status for this error.
func (e *APIError) WithStatusCode(status int) *APIError {
	e.StatusCode = status
	return e
}
