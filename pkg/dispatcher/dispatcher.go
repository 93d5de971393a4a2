// Package dispatcher turns CRM domain events into workflow executions. It
// matches each event against active workflows in the event's subaccount,
// claims a dedup mark per (event, workflow) pair, snapshots the graph, and
// asks a worker to run it.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
)

// Trigger config keys the dispatcher matches against the event payload. A
// tag_added trigger configured with tag "vip" only fires for that tag.
var constraintKeys = []string{"tag", "form_id", "stage"}

type Dispatcher struct {
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	logger       *slog.Logger
	dispatcherID string
}

func NewDispatcher(
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	dispatcherID string,
) *Dispatcher {
	return &Dispatcher{
		persistence:  persistence,
		eventBus:     eventBus,
		logger:       logger.With("module", "dispatcher", "dispatcher_id", dispatcherID),
		dispatcherID: dispatcherID,
	}
}

// Start registers handlers for every domain event type and blocks consuming
// the bus until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, eventType := range events.DomainEventTypes() {
		if err := d.eventBus.Handle(eventType, d.handleDomainEvent); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	d.logger.InfoContext(ctx, "Dispatcher started")

	return d.eventBus.Subscribe(ctx)
}

func (d *Dispatcher) handleDomainEvent(ctx context.Context, raw any) error {
	event, ok := raw.(*events.DomainEvent)
	if !ok {
		d.logger.WarnContext(ctx, "Dropping message with unexpected payload type")

		return nil
	}

	logger := d.logger.With("event_id", event.ID, "event_type", event.Type, "subaccount_id", event.SubaccountID)

	triggerSubtype := event.TriggerSubtype()
	if triggerSubtype == "" {
		return nil
	}

	workflows, err := d.persistence.Workflows().ListActiveByTrigger(ctx, event.SubaccountID, triggerSubtype)
	if err != nil {
		return fmt.Errorf("failed to list workflows for %s: %w", triggerSubtype, err)
	}

	logger.InfoContext(ctx, "Matching workflows found", "count", len(workflows))

	for _, workflow := range workflows {
		if err := d.dispatch(ctx, event, workflow, logger); err != nil {
			return err
		}
	}

	return nil
}

// Dispatch matches one event against one workflow: constraint check, dedup
// claim, snapshot, request. Exported for the API's manual-run endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, event *events.DomainEvent, workflow *models.Workflow) error {
	return d.dispatch(ctx, event, workflow, d.logger)
}

func (d *Dispatcher) dispatch(ctx context.Context, event *events.DomainEvent, workflow *models.Workflow, logger *slog.Logger) error {
	trigger := workflow.TriggerNode()
	if trigger == nil {
		logger.WarnContext(ctx, "Active workflow has no trigger node", "workflow_id", workflow.ID)

		return nil
	}

	// Schedule fires are addressed to one workflow; other date_time
	// workflows in the subaccount must not pick them up.
	if target, ok := event.Payload["workflow_id"].(string); ok && target != "" && target != workflow.ID {
		return nil
	}

	if !matchesConstraints(trigger.Config, event.Payload) {
		return nil
	}

	acquired, err := d.persistence.Dedup().Acquire(ctx, event.ID, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to acquire dedup mark: %w", err)
	}

	if !acquired {
		logger.InfoContext(ctx, "Event already dispatched to workflow", "workflow_id", workflow.ID)

		return nil
	}

	// From here on the mark is held; a failure before the execution is
	// durable and requested must give it back, or redelivery would skip the
	// workflow and the trigger would fire zero executions.
	execution, err := d.snapshot(event, workflow, trigger)
	if err != nil {
		d.releaseMark(ctx, event.ID, workflow.ID, logger)

		return err
	}

	if err := d.persistence.Executions().Save(ctx, execution); err != nil {
		d.releaseMark(ctx, event.ID, workflow.ID, logger)

		return fmt.Errorf("failed to save execution: %w", err)
	}

	requested := events.ExecutionRequested{
		BaseEvent: events.BaseEvent{
			ID:           d.eventBus.GenerateID(),
			Timestamp:    time.Now().UTC(),
			WorkflowID:   workflow.ID,
			SubaccountID: workflow.SubaccountID,
			WorkerID:     d.dispatcherID,
		},
		ExecutionID: execution.ID,
	}

	if err := d.eventBus.Publish(ctx, workflow.ID, requested); err != nil {
		d.abandonExecution(ctx, execution, err, logger)
		d.releaseMark(ctx, event.ID, workflow.ID, logger)

		return fmt.Errorf("failed to publish execution request: %w", err)
	}

	logger.InfoContext(ctx, "Execution created",
		"workflow_id", workflow.ID, "execution_id", execution.ID)

	return nil
}

// releaseMark gives the dedup claim back so redelivery retries the dispatch
// instead of skipping it.
func (d *Dispatcher) releaseMark(ctx context.Context, eventID, workflowID string, logger *slog.Logger) {
	if err := d.persistence.Dedup().Release(ctx, eventID, workflowID); err != nil {
		logger.ErrorContext(ctx, "Failed to release dedup mark; redelivery will skip this workflow",
			"workflow_id", workflowID, "error", err)
	}
}

// abandonExecution closes out a saved execution whose request never made it
// onto the bus. Redelivery starts a fresh one, so this record must not stay
// pending.
func (d *Dispatcher) abandonExecution(ctx context.Context, execution *models.Execution, cause error, logger *slog.Logger) {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.LastError = "dispatch incomplete: " + cause.Error()
	execution.FinishedAt = &now

	if err := d.persistence.Executions().Save(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to abandon undispatched execution",
			"execution_id", execution.ID, "error", err)
	}
}

// snapshot freezes the workflow graph into a new pending execution, so edits
// made after this point never affect the in-flight run.
func (d *Dispatcher) snapshot(event *events.DomainEvent, workflow *models.Workflow, trigger *models.Node) (*models.Execution, error) {
	executionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	nodes := make([]*models.Node, len(workflow.Nodes))
	copy(nodes, workflow.Nodes)

	edges := make([]*models.Edge, len(workflow.Edges))
	copy(edges, workflow.Edges)

	return &models.Execution{
		ID:           executionID.String(),
		WorkflowID:   workflow.ID,
		SubaccountID: workflow.SubaccountID,
		EventID:      event.ID,
		Status:       models.ExecutionStatusPending,
		Nodes:        nodes,
		Edges:        edges,
		CursorNodeID: trigger.ID,
		TriggerData:  event.Payload,
		NodeResults:  make(map[string]any),
		Dispatched:   make(map[string]bool),
	}, nil
}

// matchesConstraints checks the trigger's config constraints against the
// event payload. An unset constraint matches everything.
func matchesConstraints(config, payload map[string]any) bool {
	for _, key := range constraintKeys {
		want, ok := config[key].(string)
		if !ok || want == "" {
			continue
		}

		got, _ := payload[key].(string)
		if got != want {
			return false
		}
	}

	return true
}
