package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , subaccount_id
  , event_id
  , status
  , nodes
  , edges
  , cursor_node_id
  , trigger_data
  , node_results
  , dispatched
  , failed_node_id
  , last_error
  , resume_at
  , created_at
  , updated_at
  , finished_at
`

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	now := time.Now().UTC()

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	nodesJSON, err := json.Marshal(execution.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes snapshot: %w", err)
	}

	edgesJSON, err := json.Marshal(execution.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges snapshot: %w", err)
	}

	triggerJSON, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	resultsJSON, err := json.Marshal(execution.NodeResults)
	if err != nil {
		return fmt.Errorf("failed to marshal node results: %w", err)
	}

	dispatchedJSON, err := json.Marshal(execution.Dispatched)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatched set: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, subaccount_id, event_id, status,
			nodes, edges, cursor_node_id, trigger_data, node_results, dispatched,
			failed_node_id, last_error, resume_at, created_at, updated_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cursor_node_id = EXCLUDED.cursor_node_id,
			node_results = EXCLUDED.node_results,
			dispatched = EXCLUDED.dispatched,
			failed_node_id = EXCLUDED.failed_node_id,
			last_error = EXCLUDED.last_error,
			resume_at = EXCLUDED.resume_at,
			updated_at = EXCLUDED.updated_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.SubaccountID, execution.EventID, execution.Status,
		nodesJSON, edgesJSON, execution.CursorNodeID, triggerJSON, resultsJSON, dispatchedJSON,
		nullString(execution.FailedNodeID), nullString(execution.LastError), execution.ResumeAt,
		execution.CreatedAt, execution.UpdatedAt, execution.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, sc scope.Context, id string) (*models.Execution, error) {
	query := `SELECT` + executionColumns + `FROM executions WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, err
	}

	if !sc.CanAccess(execution.SubaccountID) {
		return nil, persistence.ErrScopeDenied
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, sc scope.Context, workflowID string) ([]*models.Execution, error) {
	query := `SELECT` + executionColumns + `FROM executions WHERE workflow_id = $1`
	args := []any{workflowID}

	if !sc.IsSystem() {
		query += ` AND subaccount_id = $2`
		args = append(args, sc.SubaccountID)
	}

	query += ` ORDER BY created_at DESC`

	return r.queryExecutions(ctx, query, args...)
}

func (r *ExecutionRepository) ListDue(ctx context.Context, before time.Time) ([]*models.Execution, error) {
	query := `SELECT` + executionColumns + `FROM executions WHERE status = $1 AND resume_at <= $2 ORDER BY resume_at ASC`

	return r.queryExecutions(ctx, query, models.ExecutionStatusWaiting, before)
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) scanExecution(row interface{ Scan(dest ...any) error }) (*models.Execution, error) {
	var (
		execution      models.Execution
		nodesJSON      []byte
		edgesJSON      []byte
		triggerJSON    []byte
		resultsJSON    []byte
		dispatchedJSON []byte
		failedNodeID   sql.NullString
		lastError      sql.NullString
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.SubaccountID, &execution.EventID, &execution.Status,
		&nodesJSON, &edgesJSON, &execution.CursorNodeID, &triggerJSON, &resultsJSON, &dispatchedJSON,
		&failedNodeID, &lastError, &execution.ResumeAt,
		&execution.CreatedAt, &execution.UpdatedAt, &execution.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.FailedNodeID = failedNodeID.String
	execution.LastError = lastError.String

	if err := json.Unmarshal(nodesJSON, &execution.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes snapshot: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &execution.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges snapshot: %w", err)
	}

	if err := json.Unmarshal(triggerJSON, &execution.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := json.Unmarshal(resultsJSON, &execution.NodeResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node results: %w", err)
	}

	if err := json.Unmarshal(dispatchedJSON, &execution.Dispatched); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatched set: %w", err)
	}

	return &execution, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// DedupRepository acquires (event, workflow) marks with INSERT ON CONFLICT
// DO NOTHING, which is atomic under concurrent dispatchers.
type DedupRepository struct {
	db *sql.DB
}

// NewDedupRepository creates a new dedup repository.
func NewDedupRepository(db *sql.DB) *DedupRepository {
	return &DedupRepository{db: db}
}

func (r *DedupRepository) Acquire(ctx context.Context, eventID, workflowID string) (bool, error) {
	query := `
		INSERT INTO execution_dedup (event_id, workflow_id)
		VALUES ($1, $2)
		ON CONFLICT (event_id, workflow_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, eventID, workflowID)
	if err != nil {
		return false, fmt.Errorf("failed to acquire dedup mark: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return inserted == 1, nil
}

func (r *DedupRepository) Release(ctx context.Context, eventID, workflowID string) error {
	query := `DELETE FROM execution_dedup WHERE event_id = $1 AND workflow_id = $2`

	if _, err := r.db.ExecContext(ctx, query, eventID, workflowID); err != nil {
		return fmt.Errorf("failed to release dedup mark: %w", err)
	}

	return nil
}
