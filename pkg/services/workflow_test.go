package services

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/graph"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence/file"
	"github.com/reapflow/reapflow/pkg/registry"
	"github.com/reapflow/reapflow/pkg/scope"
)

type stubBus struct {
	mu        sync.Mutex
	published []eventbus.Event
}

func (b *stubBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published = append(b.published, event)

	return nil
}

func (b *stubBus) Handle(_ events.EventType, _ eventbus.EventHandler) error { return nil }
func (b *stubBus) Subscribe(_ context.Context) error                        { return nil }
func (b *stubBus) Close() error                                             { return nil }
func (b *stubBus) GenerateID() string                                       { return uuid.New().String() }

func (b *stubBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make([]events.EventType, 0, len(b.published))
	for _, event := range b.published {
		types = append(types, event.GetType())
	}

	return types
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newWorkflowService(t *testing.T) (*Workflow, *file.Persistence, *stubBus) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	bus := &stubBus{}

	reg := registry.NewRegistry(testLogger())
	reg.RegisterDefaultNodes()

	return NewWorkflow(persistence, reg, bus), persistence, bus
}

func tenantScope() scope.Context {
	return scope.User("user-1", "sub-1", scope.RoleManager)
}

func validGraph() SaveGraphRequest {
	return SaveGraphRequest{
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerTagAdded, Config: map[string]any{"tag": "vip"}},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail, Config: map[string]any{"template_id": "tpl-1"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "a1"},
		},
	}
}

func TestWorkflowCreate(t *testing.T) {
	service, _, bus := newWorkflowService(t)
	ctx := context.Background()

	workflow, err := service.Create(ctx, tenantScope(), CreateRequest{Name: "VIP welcome", Description: "Greets VIPs"})
	require.NoError(t, err)

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "sub-1", workflow.SubaccountID)
	assert.Equal(t, "user-1", workflow.CreatedBy)
	assert.False(t, workflow.Active, "new workflows start inactive")
	assert.Contains(t, bus.types(), events.ActivityRecordedEvent)
}

func TestWorkflowCreate_Validation(t *testing.T) {
	service, _, _ := newWorkflowService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, tenantScope(), CreateRequest{Name: "ab"})
	assert.True(t, IsValidationError(err))

	_, err = service.Create(ctx, scope.System(), CreateRequest{Name: "Valid name"})
	assert.ErrorIs(t, err, ErrScopeSubaccountOnly)
}

func TestWorkflowSaveGraph(t *testing.T) {
	service, persistence, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	result, err := service.SaveGraph(ctx, sc, workflow.ID, validGraph())
	require.NoError(t, err)
	assert.True(t, result.OK())

	stored, err := service.Get(ctx, sc, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 2)
	assert.Len(t, stored.Edges, 1)

	// The legacy step projection is rewritten in the same save.
	steps, err := persistence.Workflows().StepsByWorkflow(ctx, sc, workflow.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "t1", steps[0].ID)
}

func TestWorkflowSaveGraph_FatalViolationBlocks(t *testing.T) {
	service, _, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	req := validGraph()
	req.Nodes = req.Nodes[1:] // drop the trigger
	req.Edges = nil

	result, err := service.SaveGraph(ctx, sc, workflow.ID, req)
	require.ErrorIs(t, err, ErrGraphInvalid)
	require.NotNil(t, result)
	assert.False(t, result.OK())

	// Nothing was persisted.
	stored, err := service.Get(ctx, sc, workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Nodes)
}

func TestWorkflowSaveGraph_UnknownSubtype(t *testing.T) {
	service, _, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	req := validGraph()
	req.Nodes[1].Subtype = "action:teleport"

	_, err = service.SaveGraph(ctx, sc, workflow.ID, req)
	assert.ErrorIs(t, err, ErrUnknownNodeSubtype)
}

func TestWorkflowSaveGraph_InvalidNodeConfig(t *testing.T) {
	service, _, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	req := validGraph()
	req.Nodes[1].Config = map[string]any{} // send_email requires template_id

	_, err = service.SaveGraph(ctx, sc, workflow.ID, req)
	assert.True(t, IsValidationError(err))
}

func TestWorkflowSaveGraph_ActiveWorkflowConflicts(t *testing.T) {
	service, _, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	_, err = service.SaveGraph(ctx, sc, workflow.ID, validGraph())
	require.NoError(t, err)

	_, err = service.Activate(ctx, sc, workflow.ID)
	require.NoError(t, err)

	_, err = service.SaveGraph(ctx, sc, workflow.ID, validGraph())
	assert.ErrorIs(t, err, ErrWorkflowActive)
	assert.True(t, IsConflictError(err))
}

func TestWorkflowActivate_BlockedOnInvalidGraph(t *testing.T) {
	service, _, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	// Empty graph has no trigger, so activation is blocked.
	_, err = service.Activate(ctx, sc, workflow.ID)
	assert.ErrorIs(t, err, ErrActivationBlocked)
}

func TestWorkflowActivateDeactivate(t *testing.T) {
	service, _, bus := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	_, err = service.SaveGraph(ctx, sc, workflow.ID, validGraph())
	require.NoError(t, err)

	activated, err := service.Activate(ctx, sc, workflow.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	deactivated, err := service.Deactivate(ctx, sc, workflow.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	assert.Contains(t, bus.types(), events.ActivityRecordedEvent)
}

func TestWorkflowRestoreGraphFromSteps(t *testing.T) {
	service, persistence, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	steps := []*models.WorkflowStep{
		{ID: "t1", WorkflowID: workflow.ID, StepOrder: 1, Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerNewContact},
		{ID: "a1", WorkflowID: workflow.ID, StepOrder: 2, Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail, Configuration: map[string]any{"template_id": "tpl-1"}},
	}
	require.NoError(t, persistence.Workflows().ReplaceSteps(ctx, sc, workflow.ID, steps))

	restored, err := service.RestoreGraphFromSteps(ctx, sc, workflow.ID)
	require.NoError(t, err)

	assert.Len(t, restored.Nodes, 2)
	assert.Empty(t, restored.Edges, "the step projection does not store edges")

	// Restored graphs validate like any other; the unwired action is only a
	// warning.
	result := graph.FromWorkflow(restored).Validate()
	assert.True(t, result.OK())
}

func TestWorkflowDelete(t *testing.T) {
	service, _, _ := newWorkflowService(t)
	ctx := context.Background()
	sc := tenantScope()

	workflow, err := service.Create(ctx, sc, CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, sc, workflow.ID))

	_, err = service.Get(ctx, sc, workflow.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflowList_RequiresSubaccount(t *testing.T) {
	service, _, _ := newWorkflowService(t)

	_, err := service.List(context.Background(), scope.Context{UserID: "user-1", Role: scope.RoleManager})
	assert.ErrorIs(t, err, ErrScopeSubaccountOnly)
}
