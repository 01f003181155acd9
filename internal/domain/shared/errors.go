// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")
	ErrInvalidEmail = errors.New("invalid email")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrLocked          = errors.New("locked")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
	ErrVerification       = errors.New("verification failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "account", "enrollment", "progress"
	Op      string // Operation that failed, e.g., "Verify", "Confirm"
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

// Account domain errors
var (
	ErrAccountNotFound     = NewDomainError("account", "Find", ErrNotFound, "account not found")
	ErrDuplicateAccount    = NewDomainError("account", "Register", ErrAlreadyExists, "account already exists")
	ErrInvalidCredentials  = NewDomainError("account", "Verify", ErrUnauthorized, "invalid credentials")
	ErrAccountLocked       = NewDomainError("account", "Verify", ErrLocked, "account is temporarily locked")
	ErrWeakPassword        = NewDomainError("account", "Register", ErrInvalidInput, "password must be at least 8 characters")
	ErrInvalidAccountEmail = NewDomainError("account", "Register", ErrInvalidEmail, "email address is not valid")
)

// Security domain errors
var (
	ErrOriginRateLimited = NewDomainError("security", "Guard", ErrRateLimited, "too many requests from this origin")
	ErrSuspiciousPath    = NewDomainError("security", "Guard", ErrForbidden, "request path is blocked")
)

// Catalog domain errors
var (
	ErrCourseNotFound = NewDomainError("catalog", "Find", ErrNotFound, "course not found")
	ErrModuleNotFound = NewDomainError("catalog", "FindModule", ErrNotFound, "module not found")
)

// Progress domain errors
var (
	ErrNotEnrolled = NewDomainError("progress", "MarkComplete", ErrForbidden, "account is not enrolled in this course")
)

// Enrollment domain errors
var (
	ErrIntentNotFound        = NewDomainError("enrollment", "Find", ErrNotFound, "payment intent not found")
	ErrLegNotFound           = NewDomainError("enrollment", "FindLeg", ErrNotFound, "payment reference not found")
	ErrDuplicateActiveIntent = NewDomainError("enrollment", "Initiate", ErrAlreadyExists, "an active payment intent already exists for this course")
	ErrInvalidTransition     = NewDomainError("enrollment", "Transition", ErrStateTransition, "transition is not allowed")
	ErrInvalidPlan           = NewDomainError("enrollment", "Initiate", ErrInvalidInput, "unknown payment plan")
	ErrNoOutstandingBalance  = NewDomainError("enrollment", "PayNextInstallment", ErrInvalidState, "no installment is due")
	ErrLegPending            = NewDomainError("enrollment", "PayNextInstallment", ErrInvalidState, "previous installment is still awaiting verification")
)

// Payment gateway errors
var (
	ErrGatewayUnavailable = NewDomainError("payment", "Gateway", ErrServiceUnavailable, "payment gateway is unavailable")
	ErrVerificationFailed = NewDomainError("payment", "Verify", ErrVerification, "payment could not be verified")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable checks if the operation can be retried by the caller.
// Only gateway availability problems qualify; authentication and lockout
// errors are never retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
