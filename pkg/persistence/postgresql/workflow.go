package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , subaccount_id
  , created_by
  , active
  , created_at
  , updated_at
  , deleted_at
`

func (r *WorkflowRepository) List(ctx context.Context, sc scope.Context) ([]*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `FROM workflows WHERE deleted_at IS NULL`
	args := []any{}

	if !sc.IsSystem() {
		query += ` AND subaccount_id = $1`
		args = append(args, sc.SubaccountID)
	}

	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewWorkflowError("list", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewWorkflowError("list", "", err)
		}

		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, persistence.NewWorkflowError("list", workflow.ID, err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("list", "", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, sc scope.Context, id string) (*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("get", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("get", id, err)
	}

	if !sc.CanAccess(workflow.SubaccountID) {
		return nil, persistence.NewWorkflowError("get", id, persistence.ErrScopeDenied)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, persistence.NewWorkflowError("get", id, err)
	}

	return workflow, nil
}

// Save upserts the workflow row and rewrites its node and edge rows inside
// one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, sc scope.Context, workflow *models.Workflow) error {
	if !sc.CanAccess(workflow.SubaccountID) {
		return persistence.NewWorkflowError("save", workflow.ID, persistence.ErrScopeDenied)
	}

	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewWorkflowError("save", "", fmt.Errorf("failed to generate workflow ID: %w", err))
		}

		workflow.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	workflowQuery := `
		INSERT INTO workflows (id, name, description, subaccount_id, created_by, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID, workflow.Name, workflow.Description, workflow.SubaccountID,
		workflow.CreatedBy, workflow.Active, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, fmt.Errorf("failed to upsert workflow: %w", err))
	}

	if err = r.saveGraph(ctx, tx, workflow); err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return persistence.NewWorkflowError("save", workflow.ID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at.
func (r *WorkflowRepository) Delete(ctx context.Context, sc scope.Context, id string) error {
	if _, err := r.GetByID(ctx, sc, id); err != nil {
		return err
	}

	query := `UPDATE workflows SET deleted_at = NOW(), active = false, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return persistence.NewWorkflowError("delete", id, err)
	}

	return nil
}

func (r *WorkflowRepository) ListActiveByTrigger(ctx context.Context, subaccountID, triggerSubtype string) ([]*models.Workflow, error) {
	query := `
		SELECT w.id
		FROM workflows w
		JOIN workflow_nodes n ON n.workflow_id = w.id
		WHERE w.deleted_at IS NULL
		  AND w.active = true
		  AND w.subaccount_id = $1
		  AND n.kind = 'trigger'
		  AND n.subtype = $2
	`

	rows, err := r.db.QueryContext(ctx, query, subaccountID, triggerSubtype)
	if err != nil {
		return nil, persistence.NewWorkflowError("list_active_by_trigger", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistence.NewWorkflowError("list_active_by_trigger", "", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("list_active_by_trigger", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, scope.System(), id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) ReplaceSteps(ctx context.Context, sc scope.Context, workflowID string, steps []*models.WorkflowStep) error {
	if _, err := r.GetByID(ctx, sc, workflowID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewWorkflowError("replace_steps", workflowID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = $1`, workflowID); err != nil {
		return persistence.NewWorkflowError("replace_steps", workflowID, fmt.Errorf("failed to delete steps: %w", err))
	}

	insertQuery := `
		INSERT INTO workflow_steps (id, workflow_id, step_order, step_type, subtype, configuration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, step := range steps {
		configJSON, marshalErr := json.Marshal(step.Configuration)
		if marshalErr != nil {
			err = marshalErr

			return persistence.NewWorkflowError("replace_steps", workflowID, fmt.Errorf("failed to marshal configuration: %w", marshalErr))
		}

		if step.CreatedAt.IsZero() {
			step.CreatedAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, insertQuery,
			step.ID, workflowID, step.StepOrder, step.Kind, step.Subtype, configJSON, step.CreatedAt)
		if err != nil {
			return persistence.NewWorkflowError("replace_steps", workflowID, fmt.Errorf("failed to insert step: %w", err))
		}
	}

	if err = tx.Commit(); err != nil {
		return persistence.NewWorkflowError("replace_steps", workflowID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (r *WorkflowRepository) StepsByWorkflow(ctx context.Context, sc scope.Context, workflowID string) ([]*models.WorkflowStep, error) {
	if _, err := r.GetByID(ctx, sc, workflowID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, workflow_id, step_order, step_type, subtype, configuration, created_at
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewWorkflowError("steps", workflowID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var steps []*models.WorkflowStep

	for rows.Next() {
		var (
			step       models.WorkflowStep
			configJSON []byte
		)

		err := rows.Scan(&step.ID, &step.WorkflowID, &step.StepOrder, &step.Kind, &step.Subtype, &configJSON, &step.CreatedAt)
		if err != nil {
			return nil, persistence.NewWorkflowError("steps", workflowID, err)
		}

		if err := json.Unmarshal(configJSON, &step.Configuration); err != nil {
			return nil, persistence.NewWorkflowError("steps", workflowID, fmt.Errorf("failed to unmarshal configuration: %w", err))
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("steps", workflowID, err)
	}

	return steps, nil
}

func (r *WorkflowRepository) scanWorkflow(row interface{ Scan(dest ...any) error }) (*models.Workflow, error) {
	var workflow models.Workflow

	err := row.Scan(
		&workflow.ID, &workflow.Name, &workflow.Description, &workflow.SubaccountID,
		&workflow.CreatedBy, &workflow.Active, &workflow.CreatedAt, &workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodesQuery := `
		SELECT id, kind, subtype, config, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, nodesQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes: %w", err)
	}

	for rows.Next() {
		var (
			node       models.Node
			configJSON []byte
		)

		if err := rows.Scan(&node.ID, &node.Kind, &node.Subtype, &configJSON, &node.PositionX, &node.PositionY); err != nil {
			_ = rows.Close()

			return fmt.Errorf("failed to scan node: %w", err)
		}

		if err := json.Unmarshal(configJSON, &node.Config); err != nil {
			_ = rows.Close()

			return fmt.Errorf("failed to unmarshal node config: %w", err)
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	if err := rows.Err(); err != nil {
		_ = rows.Close()

		return fmt.Errorf("error iterating nodes: %w", err)
	}

	_ = rows.Close()

	edgesQuery := `
		SELECT id, source_node_id, handle, target_node_id
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY id ASC
	`

	rows, err = r.db.QueryContext(ctx, edgesQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query edges: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var edge models.Edge

		if err := rows.Scan(&edge.ID, &edge.SourceID, &edge.Handle, &edge.TargetID); err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}

		workflow.Edges = append(workflow.Edges, &edge)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating edges: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) saveGraph(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, workflow.ID); err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, workflow.ID); err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}

	nodeQuery := `
		INSERT INTO workflow_nodes (workflow_id, id, kind, subtype, config, position_x, position_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, node := range workflow.Nodes {
		configJSON, err := json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal node config: %w", err)
		}

		_, err = tx.ExecContext(ctx, nodeQuery,
			workflow.ID, node.ID, node.Kind, node.Subtype, configJSON, node.PositionX, node.PositionY)
		if err != nil {
			return fmt.Errorf("failed to insert node: %w", err)
		}
	}

	edgeQuery := `
		INSERT INTO workflow_edges (workflow_id, id, source_node_id, handle, target_node_id)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, edge := range workflow.Edges {
		_, err := tx.ExecContext(ctx, edgeQuery,
			workflow.ID, edge.ID, edge.SourceID, edge.Handle, edge.TargetID)
		if err != nil {
			return fmt.Errorf("failed to insert edge: %w", err)
		}
	}

	return nil
}
