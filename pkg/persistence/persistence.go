// Package persistence provides the data storage abstraction for workflows,
// steps, executions, and the CRM entities workflow actions touch. Every
// repository call carries a scope.Context; implementations enforce
// subaccount isolation.
package persistence

import (
	"context"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/scope"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Dedup() DedupRepository
	Contacts() ContactRepository
	Templates() TemplateRepository
	Tasks() TaskRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	List(ctx context.Context, sc scope.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, sc scope.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, sc scope.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, sc scope.Context, id string) error

	// ListActiveByTrigger returns the active workflows in a subaccount whose
	// trigger node has the given subtype. Used by the trigger dispatcher
	// under the system scope.
	ListActiveByTrigger(ctx context.Context, subaccountID, triggerSubtype string) ([]*models.Workflow, error)

	// ReplaceSteps swaps the workflow's stored step projection with the
	// given ordered set (delete-all-then-reinsert, not incremental).
	ReplaceSteps(ctx context.Context, sc scope.Context, workflowID string, steps []*models.WorkflowStep) error
	StepsByWorkflow(ctx context.Context, sc scope.Context, workflowID string) ([]*models.WorkflowStep, error)
}

type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, sc scope.Context, id string) (*models.Execution, error)
	ListByWorkflow(ctx context.Context, sc scope.Context, workflowID string) ([]*models.Execution, error)

	// ListDue returns waiting executions whose resume deadline has passed.
	// Drives the worker's delay resumer loop.
	ListDue(ctx context.Context, before time.Time) ([]*models.Execution, error)
}

// DedupRepository records which (event, workflow) pairs have already started
// an execution, making trigger dispatch idempotent under event redelivery.
type DedupRepository interface {
	// Acquire returns true exactly once per (eventID, workflowID) pair.
	Acquire(ctx context.Context, eventID, workflowID string) (bool, error)
	// Release gives the mark back when dispatch failed after acquiring it,
	// so event redelivery can try again. Releasing an absent mark is a no-op.
	Release(ctx context.Context, eventID, workflowID string) error
}

type ContactRepository interface {
	GetByID(ctx context.Context, sc scope.Context, id string) (*models.Contact, error)
	Save(ctx context.Context, sc scope.Context, contact *models.Contact) error
	AddTag(ctx context.Context, sc scope.Context, contactID, tag string) error
}

type TemplateRepository interface {
	GetByID(ctx context.Context, sc scope.Context, id string) (*models.EmailTemplate, error)
	Save(ctx context.Context, sc scope.Context, template *models.EmailTemplate) error
}

type TaskRepository interface {
	Create(ctx context.Context, sc scope.Context, task *models.Task) error
}
