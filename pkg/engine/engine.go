// Package engine runs workflow executions: it walks the graph snapshot from
// the cursor, dispatches actions with retry and idempotency guarantees, and
// persists progress after every step so a crash never repeats a side effect.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/otelhelper"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/registry"
	"github.com/reapflow/reapflow/pkg/scope"
)

const (
	// A node gets five dispatch attempts in total before the execution fails.
	defaultMaxRetries    = 4
	defaultActionTimeout = 60 * time.Second
)

var (
	ErrNodeMissing     = errors.New("cursor node missing from execution snapshot")
	ErrInvalidDuration = errors.New("delay node has an invalid duration")
)

type Engine struct {
	persistence   persistence.Persistence
	registry      *registry.Registry
	publisher     eventbus.EventPublisher
	logger        *slog.Logger
	workerID      string
	tracer        trace.Tracer
	maxRetries    uint64
	actionTimeout time.Duration
}

func NewEngine(
	persistence persistence.Persistence,
	registry *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	workerID string,
) *Engine {
	return &Engine{
		persistence:   persistence,
		registry:      registry,
		publisher:     publisher,
		logger:        logger.With("module", "engine", "worker_id", workerID),
		workerID:      workerID,
		tracer:        otel.Tracer("reapflow.engine"),
		maxRetries:    defaultMaxRetries,
		actionTimeout: defaultActionTimeout,
	}
}

// Run advances the execution from its persisted cursor until it completes,
// fails, parks on a delay, or is cancelled. Calling Run on a terminal
// execution is a no-op, so event redelivery is harmless.
func (e *Engine) Run(ctx context.Context, executionID string) error {
	execution, err := e.persistence.Executions().GetByID(ctx, scope.System(), executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.SubaccountIDKey, execution.SubaccountID),
		attribute.String(otelhelper.WorkerIDKey, e.workerID),
	)
	defer span.End()

	logger := e.logger.With("execution_id", execution.ID, "workflow_id", execution.WorkflowID)

	if execution.Status.Terminal() {
		logger.InfoContext(ctx, "Execution already finished", "status", execution.Status)

		return nil
	}

	if execution.Status == models.ExecutionStatusWaiting {
		if execution.ResumeAt != nil && execution.ResumeAt.After(time.Now().UTC()) {
			logger.InfoContext(ctx, "Execution not due yet", "resume_at", execution.ResumeAt)

			return nil
		}

		execution.ResumeAt = nil
	}

	if execution.Status == models.ExecutionStatusPending {
		e.publish(ctx, execution, events.ExecutionStarted{
			BaseEvent:   e.baseEvent(execution),
			ExecutionID: execution.ID,
		})
	}

	execution.Status = models.ExecutionStatusRunning
	if err := e.persistence.Executions().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
	}

	logger.InfoContext(ctx, "Running execution", "cursor", execution.CursorNodeID)

	for execution.CursorNodeID != "" {
		if cancelled, err := e.cancelledElsewhere(ctx, execution.ID); err != nil {
			return err
		} else if cancelled {
			logger.InfoContext(ctx, "Execution cancelled, stopping")

			return nil
		}

		node := execution.Node(execution.CursorNodeID)
		if node == nil {
			return e.fail(ctx, execution, execution.CursorNodeID,
				fmt.Errorf("%w: %s", ErrNodeMissing, execution.CursorNodeID))
		}

		stepLogger := logger.With("node_id", node.ID, "node_subtype", node.Subtype)

		var (
			handle  = models.HandleDefault
			stepErr error
		)

		switch node.Kind {
		case models.NodeKindTrigger:
			// The trigger already fired; its payload is the execution's
			// trigger data. Nothing to dispatch.

		case models.NodeKindAction:
			if node.Subtype == models.NodeTypeActionDelay {
				return e.park(ctx, execution, node, stepLogger)
			}

			stepErr = e.dispatch(ctx, execution, node, stepLogger)

		case models.NodeKindCondition:
			var matched bool

			matched, stepErr = EvaluateCondition(node.Config, e.executionContext(execution, node, stepLogger))
			if stepErr == nil {
				handle = models.HandleNo
				if matched {
					handle = models.HandleYes
				}

				e.recordResult(execution, node.ID, map[string]any{"matched": matched, "handle": handle})
			}
		}

		if stepErr != nil {
			return e.fail(ctx, execution, node.ID, stepErr)
		}

		execution.CursorNodeID = execution.Successor(node.ID, handle)

		if err := e.persistence.Executions().Save(ctx, execution); err != nil {
			return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
		}

		stepLogger.InfoContext(ctx, "Step finished", "next", execution.CursorNodeID, "handle", handle)
	}

	return e.complete(ctx, execution)
}

// dispatch runs one action node, retrying transient failures with
// exponential backoff. Nodes whose side effect already went out in an
// earlier attempt are skipped.
func (e *Engine) dispatch(ctx context.Context, execution *models.Execution, node *models.Node, logger *slog.Logger) error {
	if execution.Dispatched[node.ID] {
		logger.InfoContext(ctx, "Side effect already dispatched, skipping")

		return nil
	}

	action, err := e.registry.CreateAction(node.Subtype, node.Config)
	if err != nil {
		return fmt.Errorf("failed to create action %s: %w", node.Subtype, err)
	}

	executionCtx := e.executionContext(execution, node, logger)

	var result any

	operation := func() error {
		actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()

		var execErr error

		result, execErr = action.Execute(actionCtx, executionCtx, logger)
		if execErr != nil {
			logger.WarnContext(ctx, "Action attempt failed", "error", execErr)
		}

		return execErr
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("action %s failed after retries: %w", node.Subtype, err)
	}

	if execution.Dispatched == nil {
		execution.Dispatched = make(map[string]bool)
	}

	execution.Dispatched[node.ID] = true
	e.recordResult(execution, node.ID, result)

	return nil
}

// park suspends the execution on a delay node. The cursor is pre-advanced to
// the delay's successor before persisting, so resuming never re-enters the
// delay.
func (e *Engine) park(ctx context.Context, execution *models.Execution, node *models.Node, logger *slog.Logger) error {
	duration, err := delayDuration(node.Config)
	if err != nil {
		return e.fail(ctx, execution, node.ID, err)
	}

	resumeAt := time.Now().UTC().Add(duration)

	execution.Status = models.ExecutionStatusWaiting
	execution.ResumeAt = &resumeAt
	execution.CursorNodeID = execution.Successor(node.ID, models.HandleDefault)
	e.recordResult(execution, node.ID, map[string]any{"resume_at": resumeAt.Format(time.RFC3339)})

	if err := e.persistence.Executions().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
	}

	e.publish(ctx, execution, events.ExecutionSuspended{
		BaseEvent:   e.baseEvent(execution),
		ExecutionID: execution.ID,
		ResumeAt:    resumeAt,
	})

	logger.InfoContext(ctx, "Execution parked", "resume_at", resumeAt, "next", execution.CursorNodeID)

	return nil
}

func (e *Engine) complete(ctx context.Context, execution *models.Execution) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusCompleted
	execution.FinishedAt = &now

	if err := e.persistence.Executions().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
	}

	e.publish(ctx, execution, events.ExecutionCompleted{
		BaseEvent:   e.baseEvent(execution),
		ExecutionID: execution.ID,
		Duration:    now.Sub(execution.CreatedAt),
	})

	e.logger.InfoContext(ctx, "Execution completed", "execution_id", execution.ID)

	return nil
}

// fail marks the execution failed and publishes the failure event. The
// causing error is recorded on the execution, not returned, so the bus does
// not redeliver a permanently broken run.
func (e *Engine) fail(ctx context.Context, execution *models.Execution, nodeID string, cause error) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusFailed
	execution.FailedNodeID = nodeID
	execution.LastError = cause.Error()
	execution.FinishedAt = &now

	otelhelper.SetError(trace.SpanFromContext(ctx), cause,
		attribute.String(otelhelper.NodeIDKey, nodeID))

	if err := e.persistence.Executions().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
	}

	e.publish(ctx, execution, events.ExecutionFailed{
		BaseEvent:    e.baseEvent(execution),
		ExecutionID:  execution.ID,
		FailedNodeID: nodeID,
		Error:        cause.Error(),
	})

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID, "node_id", nodeID, "error", cause)

	return nil
}

// cancelledElsewhere re-reads the persisted status so an API-side cancel is
// observed between steps.
func (e *Engine) cancelledElsewhere(ctx context.Context, executionID string) (bool, error) {
	current, err := e.persistence.Executions().GetByID(ctx, scope.System(), executionID)
	if err != nil {
		return false, fmt.Errorf("failed to reload execution %s: %w", executionID, err)
	}

	return current.Status == models.ExecutionStatusCancelled, nil
}

func (e *Engine) executionContext(execution *models.Execution, node *models.Node, logger *slog.Logger) models.ExecutionContext {
	return models.ExecutionContext{
		ID:             execution.ID,
		WorkflowID:     execution.WorkflowID,
		SubaccountID:   execution.SubaccountID,
		NodeID:         node.ID,
		IdempotencyKey: execution.ID + ":" + node.ID,
		TriggerData:    execution.TriggerData,
		NodeResults:    execution.NodeResults,
		Logger:         logger,
	}
}

func (e *Engine) recordResult(execution *models.Execution, nodeID string, result any) {
	if execution.NodeResults == nil {
		execution.NodeResults = make(map[string]any)
	}

	execution.NodeResults[nodeID] = result
}

func (e *Engine) baseEvent(execution *models.Execution) events.BaseEvent {
	return events.BaseEvent{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		WorkflowID:   execution.WorkflowID,
		SubaccountID: execution.SubaccountID,
		WorkerID:     e.workerID,
	}
}

func (e *Engine) publish(ctx context.Context, execution *models.Execution, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, execution.WorkflowID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "execution_id", execution.ID, "error", err)
	}
}

// delayDuration reads the delay node's duration config. Accepts Go duration
// strings ("30m", "48h") plus a day suffix ("2d").
func delayDuration(config map[string]any) (time.Duration, error) {
	raw, _ := config["duration"].(string)
	if raw == "" {
		return 0, ErrInvalidDuration
	}

	if days, found := parseDays(raw); found {
		return days, nil
	}

	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, raw)
	}

	return duration, nil
}

func parseDays(raw string) (time.Duration, bool) {
	if len(raw) < 2 || raw[len(raw)-1] != 'd' {
		return 0, false
	}

	var days int
	if _, err := fmt.Sscanf(raw, "%dd", &days); err != nil || days <= 0 {
		return 0, false
	}

	return time.Duration(days) * 24 * time.Hour, true
}
