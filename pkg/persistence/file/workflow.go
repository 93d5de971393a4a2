package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

// WorkflowRepository stores workflows as JSON documents under
// <root>/workflows and the step projection under <root>/steps.
type WorkflowRepository struct {
	root string
}

func (r *WorkflowRepository) workflowsDir() string {
	return filepath.Join(r.root, "workflows")
}

func (r *WorkflowRepository) stepsDir() string {
	return filepath.Join(r.root, "steps")
}

func (r *WorkflowRepository) List(_ context.Context, sc scope.Context) ([]*models.Workflow, error) {
	names, err := listJSON(r.workflowsDir())
	if err != nil {
		return nil, persistence.NewWorkflowError("list", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(names))

	for _, name := range names {
		var workflow models.Workflow
		if err := readJSON(r.workflowsDir(), name, &workflow); err != nil {
			return nil, persistence.NewWorkflowError("list", name, err)
		}

		if workflow.DeletedAt != nil || !sc.CanAccess(workflow.SubaccountID) {
			continue
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, sc scope.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := readJSON(r.workflowsDir(), id, &workflow); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewWorkflowError("get", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("get", id, err)
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("get", id, persistence.ErrWorkflowNotFound)
	}

	if !sc.CanAccess(workflow.SubaccountID) {
		return nil, persistence.NewWorkflowError("get", id, persistence.ErrScopeDenied)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, sc scope.Context, workflow *models.Workflow) error {
	if !sc.CanAccess(workflow.SubaccountID) {
		return persistence.NewWorkflowError("save", workflow.ID, persistence.ErrScopeDenied)
	}

	workflow.UpdatedAt = time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = workflow.UpdatedAt
	}

	if err := writeJSON(r.workflowsDir(), workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, err)
	}

	return nil
}

// Delete soft-deletes: the document stays on disk with DeletedAt set, so
// execution history keeps resolving the workflow ID.
func (r *WorkflowRepository) Delete(ctx context.Context, sc scope.Context, id string) error {
	workflow, err := r.GetByID(ctx, sc, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.Active = false

	if err := writeJSON(r.workflowsDir(), workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	return nil
}

func (r *WorkflowRepository) ListActiveByTrigger(ctx context.Context, subaccountID, triggerSubtype string) ([]*models.Workflow, error) {
	all, err := r.List(ctx, scope.System())
	if err != nil {
		return nil, err
	}

	var matched []*models.Workflow

	for _, workflow := range all {
		if !workflow.Active || workflow.SubaccountID != subaccountID {
			continue
		}

		trigger := workflow.TriggerNode()
		if trigger == nil || trigger.Subtype != triggerSubtype {
			continue
		}

		matched = append(matched, workflow)
	}

	return matched, nil
}

func (r *WorkflowRepository) ReplaceSteps(ctx context.Context, sc scope.Context, workflowID string, steps []*models.WorkflowStep) error {
	if _, err := r.GetByID(ctx, sc, workflowID); err != nil {
		return err
	}

	if err := writeJSON(r.stepsDir(), workflowID, steps); err != nil {
		return persistence.NewWorkflowError("replace_steps", workflowID, err)
	}

	return nil
}

func (r *WorkflowRepository) StepsByWorkflow(ctx context.Context, sc scope.Context, workflowID string) ([]*models.WorkflowStep, error) {
	if _, err := r.GetByID(ctx, sc, workflowID); err != nil {
		return nil, err
	}

	var steps []*models.WorkflowStep

	if err := readJSON(r.stepsDir(), workflowID, &steps); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, persistence.NewWorkflowError("steps", workflowID, err)
	}

	return steps, nil
}
