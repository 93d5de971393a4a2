package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence/file"
	"github.com/reapflow/reapflow/pkg/scope"
)

func newExecutionService(t *testing.T) (*Execution, *file.Persistence, *stubBus) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	bus := &stubBus{}

	return NewExecution(persistence, bus), persistence, bus
}

func seedWorkflowWithExecution(t *testing.T, persistence *file.Persistence, status models.ExecutionStatus) *models.Execution {
	t.Helper()
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:           "wf-1",
		Name:         "VIP welcome",
		SubaccountID: "sub-1",
		CreatedBy:    "user-1",
		Active:       true,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerTagAdded},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "a1"},
		},
	}
	require.NoError(t, persistence.Workflows().Save(ctx, scope.System(), workflow))

	execution := &models.Execution{
		ID:           "exec-1",
		WorkflowID:   "wf-1",
		SubaccountID: "sub-1",
		Status:       status,
		Nodes:        workflow.Nodes,
		Edges:        workflow.Edges,
		CursorNodeID: "a1",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	return execution
}

func TestExecutionCancel(t *testing.T) {
	service, persistence, bus := newExecutionService(t)
	ctx := context.Background()
	sc := tenantScope()

	waiting := seedWorkflowWithExecution(t, persistence, models.ExecutionStatusWaiting)
	resumeAt := time.Now().UTC().Add(time.Hour)
	waiting.ResumeAt = &resumeAt
	require.NoError(t, persistence.Executions().Save(ctx, waiting))

	cancelled, err := service.Cancel(ctx, sc, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.FinishedAt)
	assert.Nil(t, cancelled.ResumeAt, "a cancelled execution never resumes")
	assert.Contains(t, bus.types(), events.ExecutionCancelledEvent)
}

func TestExecutionCancel_TerminalConflicts(t *testing.T) {
	service, persistence, _ := newExecutionService(t)
	ctx := context.Background()

	seedWorkflowWithExecution(t, persistence, models.ExecutionStatusCompleted)

	_, err := service.Cancel(ctx, tenantScope(), "exec-1")
	assert.ErrorIs(t, err, ErrExecutionFinished)
	assert.True(t, IsConflictError(err))
}

func TestExecutionCancel_ScopeDenied(t *testing.T) {
	service, persistence, _ := newExecutionService(t)

	seedWorkflowWithExecution(t, persistence, models.ExecutionStatusRunning)

	_, err := service.Cancel(context.Background(), scope.User("u", "sub-2", scope.RoleManager), "exec-1")
	assert.Error(t, err)
}

func TestExecutionListByWorkflow(t *testing.T) {
	service, persistence, _ := newExecutionService(t)
	ctx := context.Background()

	seedWorkflowWithExecution(t, persistence, models.ExecutionStatusCompleted)

	executions, err := service.ListByWorkflow(ctx, tenantScope(), "wf-1")
	require.NoError(t, err)
	assert.Len(t, executions, 1)

	_, err = service.ListByWorkflow(ctx, tenantScope(), "wf-missing")
	assert.True(t, IsNotFound(err))
}

func TestExecutionTestRun(t *testing.T) {
	service, persistence, bus := newExecutionService(t)
	ctx := context.Background()

	seedWorkflowWithExecution(t, persistence, models.ExecutionStatusCompleted)

	eventID, err := service.TestRun(ctx, tenantScope(), "wf-1", map[string]any{"tag": "vip"})
	require.NoError(t, err)
	assert.NotEmpty(t, eventID)

	require.Len(t, bus.published, 1)

	event, ok := bus.published[0].(events.DomainEvent)
	require.True(t, ok)
	assert.Equal(t, events.ContactTagAddedEvent, event.Type)
	assert.Equal(t, "sub-1", event.SubaccountID)
	assert.Equal(t, "vip", event.Payload["tag"])
}

func TestExecutionTestRun_NoTrigger(t *testing.T) {
	service, persistence, _ := newExecutionService(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:           "wf-bare",
		Name:         "Empty",
		SubaccountID: "sub-1",
		CreatedBy:    "user-1",
	}
	require.NoError(t, persistence.Workflows().Save(ctx, scope.System(), workflow))

	_, err := service.TestRun(ctx, tenantScope(), "wf-bare", nil)
	assert.True(t, IsValidationError(err))
}
