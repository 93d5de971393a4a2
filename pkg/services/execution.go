package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

type Execution struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, eventBus eventbus.EventBus) *Execution {
	return &Execution{
		persistence: persistence,
		eventBus:    eventBus,
	}
}

// ListByWorkflow returns the execution history of one workflow, newest
// first.
func (e *Execution) ListByWorkflow(ctx context.Context, sc scope.Context, workflowID string) ([]*models.Execution, error) {
	if _, err := e.persistence.Workflows().GetByID(ctx, sc, workflowID); err != nil {
		return nil, err
	}

	return e.persistence.Executions().ListByWorkflow(ctx, sc, workflowID)
}

// Get returns one execution with its snapshot and per-node results.
func (e *Execution) Get(ctx context.Context, sc scope.Context, id string) (*models.Execution, error) {
	return e.persistence.Executions().GetByID(ctx, sc, id)
}

// Cancel marks a non-terminal execution cancelled. The worker observes the
// status between steps; a step already dispatched is never undone.
func (e *Execution) Cancel(ctx context.Context, sc scope.Context, id string) (*models.Execution, error) {
	execution, err := e.persistence.Executions().GetByID(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	if execution.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrExecutionFinished, execution.Status)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.FinishedAt = &now
	execution.ResumeAt = nil

	if err := e.persistence.Executions().Save(ctx, execution); err != nil {
		return nil, err
	}

	cancelled := events.ExecutionCancelled{
		BaseEvent: events.BaseEvent{
			ID:           e.eventBus.GenerateID(),
			Timestamp:    now,
			WorkflowID:   execution.WorkflowID,
			SubaccountID: execution.SubaccountID,
		},
		ExecutionID: execution.ID,
		CancelledBy: sc.UserID,
	}

	if err := e.eventBus.Publish(ctx, execution.WorkflowID, cancelled); err != nil {
		return nil, fmt.Errorf("failed to publish cancellation: %w", err)
	}

	return execution, nil
}

// TestRun publishes a synthetic domain event matching the workflow's trigger
// so the full dispatch path runs against the supplied payload.
func (e *Execution) TestRun(ctx context.Context, sc scope.Context, workflowID string, payload map[string]any) (string, error) {
	workflow, err := e.persistence.Workflows().GetByID(ctx, sc, workflowID)
	if err != nil {
		return "", err
	}

	trigger := workflow.TriggerNode()
	if trigger == nil {
		return "", NewValidationError("test_run", "NO_TRIGGER", "workflow has no trigger node", ErrGraphInvalid)
	}

	eventType := events.EventTypeForSubtype(trigger.Subtype)
	if eventType == "" {
		return "", NewValidationError("test_run", "UNKNOWN_TRIGGER",
			"trigger subtype has no event source: "+trigger.Subtype, ErrUnknownNodeSubtype)
	}

	if payload == nil {
		payload = map[string]any{}
	}

	event := events.DomainEvent{
		ID:           e.eventBus.GenerateID(),
		Type:         eventType,
		SubaccountID: workflow.SubaccountID,
		Timestamp:    time.Now().UTC(),
		Payload:      payload,
	}

	if err := e.eventBus.Publish(ctx, workflow.SubaccountID, event); err != nil {
		return "", fmt.Errorf("failed to publish test event: %w", err)
	}

	return event.ID, nil
}

// IsNotFound reports whether err is any of the service's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, persistence.ErrWorkflowNotFound) ||
		errors.Is(err, persistence.ErrExecutionNotFound) ||
		errors.Is(err, persistence.ErrContactNotFound) ||
		errors.Is(err, persistence.ErrTemplateNotFound)
}
