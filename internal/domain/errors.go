package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyInput indicates that a tabular input contained no rows at all.
	ErrEmptyInput = errors.New("empty input")

	// ErrMissingColumns indicates that a header row lacks a required column.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrRetriesExhausted indicates that a throttled request was retried
	// the maximum number of times without success.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrMalformedResponse indicates that an upstream response body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	StatusCode int
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s (status %d): retry after %s", e.Source, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s (status %d)", e.Source, e.StatusCode)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// HeaderError reports a header row that lacks the title or quartile column.
type HeaderError struct {
	Header []string
}

// Error implements the error interface.
func (e *HeaderError) Error() string {
	quoted := make([]string, len(e.Header))
	for i, h := range e.Header {
		quoted[i] = fmt.Sprintf("%q", h)
	}
	return fmt.Sprintf("could not find title/quartile columns in header: [%s]", strings.Join(quoted, ", "))
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *HeaderError) Unwrap() error {
	return ErrMissingColumns
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, statusCode int, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
