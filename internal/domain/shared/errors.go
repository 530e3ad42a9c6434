// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
// Every error surfaced by a progression flow matches exactly one of them,
// or none when it originates in the store.
var (
	// ErrInvalidTransition is an attempted state change outside the allowed set.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound is a referenced module, mission, profile or progress row that does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrPermissionDenied is a locked module or an unmet unlock precondition.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is malformed input.
	ErrValidation = errors.New("validation error")
)

// Machine-readable error kinds returned by KindOf.
const (
	KindInvalidTransition = "invalid_transition"
	KindNotFound          = "not_found"
	KindPermissionDenied  = "permission_denied"
	KindValidation        = "validation"
	KindInternal          = "internal"
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "module", "mission", "profile"
	Op      string // Operation that failed, e.g., "Unlock", "Complete"
	Kind    error  // Base error kind for errors.Is() checking
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

// NotFound is a shorthand for a not-found domain error on a named entity.
func NotFound(domain, op, what, id string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf("%s %q not found", what, id))
}

// Validation is a shorthand for a validation domain error.
func Validation(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// IsInvalidTransition checks if the error is a rejected state change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermissionDenied checks if the error is a permission error.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// KindOf maps an error to its machine-readable kind.
// Errors outside the taxonomy (store failures) report KindInternal.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInvalidTransition(err):
		return KindInvalidTransition
	case IsNotFound(err):
		return KindNotFound
	case IsPermissionDenied(err):
		return KindPermissionDenied
	case IsValidation(err):
		return KindValidation
	default:
		return KindInternal
	}
}
