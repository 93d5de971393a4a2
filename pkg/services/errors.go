// Package services implements the application operations behind the HTTP
// API: workflow CRUD and graph editing, execution queries, and the activity
// notifier.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. Validation errors map to 400 responses, conflicts
// to 409.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrGraphInvalid         = errors.New("workflow graph has fatal violations")
	ErrUnknownNodeSubtype   = errors.New("unknown node subtype")

	ErrWorkflowActive      = errors.New("cannot modify an active workflow's graph")
	ErrExecutionFinished   = errors.New("execution already finished")
	ErrActivationBlocked   = errors.New("workflow cannot be activated while invalid")
	ErrScopeSubaccountOnly = errors.New("operation requires a subaccount-scoped caller")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrGraphInvalid) ||
		errors.Is(err, ErrUnknownNodeSubtype) ||
		errors.Is(err, ErrScopeSubaccountOnly)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowActive) ||
		errors.Is(err, ErrExecutionFinished) ||
		errors.Is(err, ErrActivationBlocked)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
