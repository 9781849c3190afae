// Package shared contains the error taxonomy and small value types used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Authorization errors, reported by the backend and propagated untouched.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Fetch errors
	ErrTransientFetch = errors.New("transient fetch error")

	// Export errors
	ErrExport = errors.New("export error")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attendance", "exam", "export"
	Op      string // Operation that failed, e.g., "SetWorkingDays"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewValidationError is shorthand for a validation failure with a user-facing message.
func NewValidationError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// Attendance domain errors
var (
	ErrInvalidMonth        = NewDomainError("attendance", "ParseMonth", ErrValidation, "unknown month")
	ErrInvalidAcademicYear = NewDomainError("attendance", "ParseAcademicYear", ErrValidation, "academic year must look like 2024-2025")
	ErrWorkingDaysRange    = NewDomainError("attendance", "Validate", ErrValueOutOfRange, "working days must be between 0 and 31")
	ErrDaysPresentRange    = NewDomainError("attendance", "Validate", ErrValueOutOfRange, "days present must be between 0 and working days")
	ErrThresholdRange      = NewDomainError("attendance", "Validate", ErrValueOutOfRange, "threshold must be between 1 and 100")
	ErrAttendanceNotFound  = NewDomainError("attendance", "Find", ErrNotFound, "attendance record not found")
)

// Student and exam domain errors
var (
	ErrStudentNotFound = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrInvalidExamType = NewDomainError("exam", "ParseExamType", ErrValidation, "unknown exam type")
)

// Export errors
var (
	ErrNoStudentIdentity = NewDomainError("export", "ProgressDocument", ErrExport, "student details not available")
	ErrExportNotFound    = NewDomainError("export", "Find", ErrNotFound, "export not found")
)

// External service errors
var (
	ErrBackendUnavailable     = NewDomainError("backend", "Request", ErrServiceUnavailable, "attendance backend is unavailable")
	ErrBackendRateLimited     = NewDomainError("backend", "Request", ErrRateLimited, "attendance backend rate limit exceeded")
	ErrBackendTimeout         = NewDomainError("backend", "Request", ErrTimeout, "attendance backend request timeout")
	ErrBackendInvalidResponse = NewDomainError("backend", "Parse", ErrInvalidFormat, "invalid response from attendance backend")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsAuthorization reports whether the backend refused the caller.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsExport checks if rendering an export failed.
func IsExport(err error) bool {
	return errors.Is(err, ErrExport)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTransientFetch)
}
