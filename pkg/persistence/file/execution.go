package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

// ExecutionRepository stores executions as JSON documents under
// <root>/executions.
type ExecutionRepository struct {
	root string
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	execution.UpdatedAt = time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = execution.UpdatedAt
	}

	return writeJSON(r.dir(), execution.ID, execution)
}

func (r *ExecutionRepository) GetByID(_ context.Context, sc scope.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	if err := readJSON(r.dir(), id, &execution); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, err
	}

	if !sc.CanAccess(execution.SubaccountID) {
		return nil, persistence.ErrScopeDenied
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, sc scope.Context, workflowID string) ([]*models.Execution, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var executions []*models.Execution

	for _, execution := range all {
		if execution.WorkflowID != workflowID || !sc.CanAccess(execution.SubaccountID) {
			continue
		}

		executions = append(executions, execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return executions, nil
}

func (r *ExecutionRepository) ListDue(ctx context.Context, before time.Time) ([]*models.Execution, error) {
	all, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var due []*models.Execution

	for _, execution := range all {
		if execution.Status != models.ExecutionStatusWaiting {
			continue
		}

		if execution.ResumeAt != nil && !execution.ResumeAt.After(before) {
			due = append(due, execution)
		}
	}

	return due, nil
}

func (r *ExecutionRepository) list(_ context.Context) ([]*models.Execution, error) {
	names, err := listJSON(r.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*models.Execution, 0, len(names))

	for _, name := range names {
		var execution models.Execution
		if err := readJSON(r.dir(), name, &execution); err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", name, err)
		}

		executions = append(executions, &execution)
	}

	return executions, nil
}

// DedupRepository acquires (event, workflow) marks by creating a marker file
// with O_EXCL, which is atomic on the local file system.
type DedupRepository struct {
	root string
}

func (r *DedupRepository) dir() string {
	return filepath.Join(r.root, "dedup")
}

func (r *DedupRepository) Acquire(_ context.Context, eventID, workflowID string) (bool, error) {
	if err := os.MkdirAll(r.dir(), 0o755); err != nil {
		return false, fmt.Errorf("failed to create dedup directory: %w", err)
	}

	path := filepath.Join(r.dir(), eventID+"_"+workflowID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to acquire dedup mark: %w", err)
	}

	return true, f.Close()
}

func (r *DedupRepository) Release(_ context.Context, eventID, workflowID string) error {
	path := filepath.Join(r.dir(), eventID+"_"+workflowID)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release dedup mark: %w", err)
	}

	return nil
}
