// Package worker consumes execution requests from the bus and drives the
// engine. One worker process runs the consumer loop plus the delay resumer.
package worker

import (
	"context"
	"log/slog"

	"github.com/reapflow/reapflow/pkg/engine"
	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/registry"
)

type Manager struct {
	id       string
	logger   *slog.Logger
	engine   *engine.Engine
	resumer  *engine.Resumer
	eventBus eventbus.EventBus
}

func NewManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	registry *registry.Registry,
) *Manager {
	executionEngine := engine.NewEngine(persistence, registry, eventBus, logger, id)

	return &Manager{
		id:       id,
		logger:   logger.With("module", "worker", "worker_id", id),
		engine:   executionEngine,
		resumer:  engine.NewResumer(persistence.Executions(), executionEngine, logger),
		eventBus: eventBus,
	}
}

// Start registers the execution-request handler, launches the resumer, and
// blocks consuming the bus until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting worker manager")

	if err := m.eventBus.Handle(events.ExecutionRequestedEvent, m.handleExecutionRequested); err != nil {
		return err
	}

	go m.resumer.Start(ctx)

	if err := m.eventBus.Subscribe(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	return nil
}

func (m *Manager) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := m.logger.With(
		"execution_id", requested.ExecutionID,
		"workflow_id", requested.WorkflowID,
	)
	logger.InfoContext(ctx, "Processing execution request")

	if err := m.engine.Run(ctx, requested.ExecutionID); err != nil {
		logger.ErrorContext(ctx, "Failed to run execution", "error", err)

		return err
	}

	return nil
}
