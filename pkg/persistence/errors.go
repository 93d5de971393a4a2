package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations return.
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrContactNotFound   = errors.New("contact not found")
	ErrTemplateNotFound  = errors.New("email template not found")

	// ErrScopeDenied indicates the acting scope may not touch the requested
	// subaccount's rows.
	ErrScopeDenied = errors.New("scope denied for subaccount")
)

// WorkflowError wraps workflow-related errors with operation context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsScopeDenied(err error) bool {
	return errors.Is(err, ErrScopeDenied)
}
