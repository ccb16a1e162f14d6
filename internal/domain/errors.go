package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches DomainErrors by code so sentinel comparisons survive wrapping.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeInvalidOutput       = "INVALID_OUTPUT"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuery     = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrInvalidProfile = NewDomainError(ErrCodeValidation, "invalid student profile")
)

// Upstream errors. Upstream-unavailable failures are retryable at a higher
// layer; within the pipeline they are absorbed into the fallback decision.
var (
	ErrProviderUnavailable  = NewDomainError(ErrCodeUpstreamUnavailable, "model provider unavailable")
	ErrRetrievalUnavailable = NewDomainError(ErrCodeUpstreamUnavailable, "similarity search unavailable")
)

// Invalid-output errors are not retryable; the provider responded but the
// response could not be used.
var ErrInvalidModelOutput = NewDomainError(ErrCodeInvalidOutput, "model returned unusable output")

// Not found errors
var ErrChunkNotFound = NewDomainError(ErrCodeNotFound, "knowledge chunk not found")

// IsUpstreamUnavailable reports whether err is an upstream-unavailable
// failure, including wrapped ones.
func IsUpstreamUnavailable(err error) bool {
	var derr *DomainError
	if !errors.As(err, &derr) {
		return false
	}
	return derr.Code == ErrCodeUpstreamUnavailable
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	var derr *DomainError
	if !errors.As(err, &derr) {
		return false
	}
	return derr.Code == ErrCodeValidation
}
