package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence/file"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/registry"
	"github.com/reapflow/reapflow/pkg/scope"
)

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

// scriptedAction fails a configured number of times before succeeding,
// counting every attempt.
type scriptedAction struct {
	factory *scriptedFactory
}

func (a *scriptedAction) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	a.factory.mu.Lock()
	defer a.factory.mu.Unlock()

	a.factory.calls++
	if a.factory.failuresLeft > 0 {
		a.factory.failuresLeft--

		return nil, errors.New("collaborator unavailable")
	}

	return map[string]any{"ok": true}, nil
}

type scriptedFactory struct {
	mu           sync.Mutex
	subtype      string
	failuresLeft int
	calls        int
}

func (f *scriptedFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &scriptedAction{factory: f}, nil
}

func (f *scriptedFactory) ID() string {
	return f.subtype
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestEngine(t *testing.T, factories ...*scriptedFactory) (*Engine, *file.Persistence, *capturingPublisher) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	publisher := &capturingPublisher{}

	reg := registry.NewRegistry(testLogger())
	reg.RegisterDefaultNodes()

	for _, factory := range factories {
		reg.RegisterAction(factory)
	}

	return NewEngine(persistence, reg, publisher, testLogger(), "worker-test"), persistence, publisher
}

func linearExecution(triggerData map[string]any) *models.Execution {
	return &models.Execution{
		ID:           "exec-1",
		WorkflowID:   "wf-1",
		SubaccountID: "sub-1",
		EventID:      "evt-1",
		Status:       models.ExecutionStatusPending,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerNewContact},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail, Config: map[string]any{"template_id": "tpl-1"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "a1"},
		},
		CursorNodeID: "t1",
		TriggerData:  triggerData,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestRun_CompletesLinearFlow(t *testing.T) {
	factory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail}
	engine, persistence, publisher := newTestEngine(t, factory)

	ctx := context.Background()
	execution := linearExecution(map[string]any{"email": "ana@example.com"})
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
	assert.True(t, stored.Dispatched["a1"])
	assert.Contains(t, stored.NodeResults, "a1")
	assert.Equal(t, 1, factory.calls)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionCompletedEvent,
	}, publisher.types())
}

func TestRun_TerminalExecutionIsNoOp(t *testing.T) {
	factory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail}
	engine, persistence, publisher := newTestEngine(t, factory)

	ctx := context.Background()
	execution := linearExecution(nil)
	execution.Status = models.ExecutionStatusCompleted
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	assert.Zero(t, factory.calls)
	assert.Empty(t, publisher.types())
}

func TestRun_RetriesTransientActionFailure(t *testing.T) {
	factory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail, failuresLeft: 1}
	engine, persistence, _ := newTestEngine(t, factory)

	ctx := context.Background()
	execution := linearExecution(nil)
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 2, factory.calls)
}

func TestRun_EventsCarryUniqueIDs(t *testing.T) {
	factory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail}
	engine, persistence, publisher := newTestEngine(t, factory)

	ctx := context.Background()
	execution := linearExecution(nil)
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	// Downstream consumers key notification idempotency on event IDs, so
	// every lifecycle event needs its own.
	seen := map[string]bool{}

	for _, event := range publisher.events {
		var id string

		switch e := event.(type) {
		case events.ExecutionStarted:
			id = e.ID
		case events.ExecutionCompleted:
			id = e.ID
		}

		require.NotEmpty(t, id)
		assert.False(t, seen[id], "event ID %s reused", id)
		seen[id] = true
	}

	assert.Len(t, seen, 2)
}

func TestNewEngine_DefaultsToFiveAttempts(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	assert.EqualValues(t, 5, engine.maxRetries+1)
}

func TestRun_FailsAfterRetriesExhausted(t *testing.T) {
	factory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail, failuresLeft: 10}
	engine, persistence, publisher := newTestEngine(t, factory)
	engine.maxRetries = 1

	ctx := context.Background()
	execution := linearExecution(nil)
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	// The run itself returns nil so the bus does not redeliver it.
	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, "a1", stored.FailedNodeID)
	assert.NotEmpty(t, stored.LastError)
	assert.Contains(t, publisher.types(), events.ExecutionFailedEvent)
}

func TestRun_DispatchedNodeIsNotRepeated(t *testing.T) {
	factory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail}
	engine, persistence, _ := newTestEngine(t, factory)

	ctx := context.Background()
	execution := linearExecution(nil)
	// Simulate a crash after dispatching a1 but before advancing the cursor.
	execution.Status = models.ExecutionStatusRunning
	execution.CursorNodeID = "a1"
	execution.Dispatched = map[string]bool{"a1": true}
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Zero(t, factory.calls, "already dispatched side effect must not be repeated")
}

func TestRun_ConditionRoutesYesBranch(t *testing.T) {
	emailFactory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail}
	smsFactory := &scriptedFactory{subtype: models.NodeTypeActionSendSMS}
	engine, persistence, _ := newTestEngine(t, emailFactory, smsFactory)

	ctx := context.Background()
	execution := &models.Execution{
		ID:           "exec-2",
		WorkflowID:   "wf-1",
		SubaccountID: "sub-1",
		Status:       models.ExecutionStatusPending,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerTagAdded},
			{ID: "c1", Kind: models.NodeKindCondition, Subtype: models.NodeTypeConditionIfThen, Config: map[string]any{
				"field": "tag", "operator": "equals", "value": "vip",
			}},
			{ID: "yes1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail},
			{ID: "no1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendSMS},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "c1"},
			{ID: "e2", SourceID: "c1", Handle: models.HandleYes, TargetID: "yes1"},
			{ID: "e3", SourceID: "c1", Handle: models.HandleNo, TargetID: "no1"},
		},
		CursorNodeID: "t1",
		TriggerData:  map[string]any{"tag": "vip"},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 1, emailFactory.calls)
	assert.Zero(t, smsFactory.calls)

	conditionResult, ok := stored.NodeResults["c1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, conditionResult["matched"])
}

func TestRun_UnwiredBranchEndsExecution(t *testing.T) {
	smsFactory := &scriptedFactory{subtype: models.NodeTypeActionSendSMS}
	engine, persistence, _ := newTestEngine(t, smsFactory)

	ctx := context.Background()
	execution := &models.Execution{
		ID:           "exec-3",
		WorkflowID:   "wf-1",
		SubaccountID: "sub-1",
		Status:       models.ExecutionStatusPending,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerTagAdded},
			{ID: "c1", Kind: models.NodeKindCondition, Subtype: models.NodeTypeConditionIfThen, Config: map[string]any{
				"field": "tag", "operator": "equals", "value": "vip",
			}},
			{ID: "no1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendSMS},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "c1"},
			{ID: "e2", SourceID: "c1", Handle: models.HandleNo, TargetID: "no1"},
		},
		CursorNodeID: "t1",
		TriggerData:  map[string]any{"tag": "vip"},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	// The yes branch matched but is unwired, so the run completes with no
	// further dispatch.
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Zero(t, smsFactory.calls)
}

func TestRun_DelayParksExecution(t *testing.T) {
	tagFactory := &scriptedFactory{subtype: models.NodeTypeActionAddTag}
	engine, persistence, publisher := newTestEngine(t, tagFactory)

	ctx := context.Background()
	execution := &models.Execution{
		ID:           "exec-4",
		WorkflowID:   "wf-1",
		SubaccountID: "sub-1",
		Status:       models.ExecutionStatusPending,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerNewContact},
			{ID: "d1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionDelay, Config: map[string]any{"duration": "2d"}},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionAddTag, Config: map[string]any{"tag": "followup"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "d1"},
			{ID: "e2", SourceID: "d1", Handle: models.HandleDefault, TargetID: "a1"},
		},
		CursorNodeID: "t1",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusWaiting, stored.Status)
	require.NotNil(t, stored.ResumeAt)
	assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), *stored.ResumeAt, time.Minute)
	assert.Equal(t, "a1", stored.CursorNodeID, "cursor pre-advanced past the delay")
	assert.Zero(t, tagFactory.calls)
	assert.Contains(t, publisher.types(), events.ExecutionSuspendedEvent)

	// Running again before the deadline is a no-op.
	require.NoError(t, engine.Run(ctx, execution.ID))
	assert.Zero(t, tagFactory.calls)

	// Force the deadline into the past and resume.
	past := time.Now().UTC().Add(-time.Minute)
	stored.ResumeAt = &past
	require.NoError(t, persistence.Executions().Save(ctx, stored))

	require.NoError(t, engine.Run(ctx, execution.ID))

	resumed, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)
	assert.Nil(t, resumed.ResumeAt)
	assert.Equal(t, 1, tagFactory.calls)
}

func TestRun_MissingCursorNodeFails(t *testing.T) {
	engine, persistence, publisher := newTestEngine(t)

	ctx := context.Background()
	execution := linearExecution(nil)
	execution.CursorNodeID = "ghost"
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	require.NoError(t, engine.Run(ctx, execution.ID))

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, "ghost", stored.FailedNodeID)
	assert.Contains(t, publisher.types(), events.ExecutionFailedEvent)
}

func TestResumer_RunsDueExecutions(t *testing.T) {
	factory := &scriptedFactory{subtype: models.NodeTypeActionSendEmail}
	engine, persistence, _ := newTestEngine(t, factory)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)

	execution := linearExecution(nil)
	execution.Status = models.ExecutionStatusWaiting
	execution.CursorNodeID = "a1"
	execution.ResumeAt = &past
	require.NoError(t, persistence.Executions().Save(ctx, execution))

	resumer := NewResumer(persistence.Executions(), engine, testLogger())
	resumer.resumeDue(ctx)

	stored, err := persistence.Executions().GetByID(ctx, scope.System(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 1, factory.calls)
}
