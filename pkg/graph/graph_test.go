package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapflow/reapflow/pkg/models"
)

func TestConnect_LinearFlow(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	email := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, map[string]any{"template_id": "tpl-1"})

	edgeID, err := g.Connect(trigger, models.HandleDefault, email)
	require.NoError(t, err)
	assert.NotEmpty(t, edgeID)

	assert.Equal(t, email, g.Successor(trigger, models.HandleDefault))
	assert.Len(t, g.Edges(), 1)
}

func TestConnect_UnknownNodes(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)

	_, err := g.Connect(trigger, models.HandleDefault, "missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = g.Connect("missing", models.HandleDefault, trigger)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestConnect_InvalidHandle(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	action := g.AddNode(models.NodeKindAction, models.NodeTypeActionAddTag, 0, 140, nil)
	condition := g.AddNode(models.NodeKindCondition, models.NodeTypeConditionIfThen, 0, 280, nil)

	_, err := g.Connect(trigger, models.HandleYes, action)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	_, err = g.Connect(condition, models.HandleDefault, action)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestConnect_DuplicateHandle(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	first := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, nil)
	second := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendSMS, 0, 280, nil)

	_, err := g.Connect(trigger, models.HandleDefault, first)
	require.NoError(t, err)

	_, err = g.Connect(trigger, models.HandleDefault, second)
	assert.ErrorIs(t, err, ErrDuplicateEdge)

	// The failed connect must not leave a partial edge behind.
	assert.Len(t, g.Edges(), 1)
}

func TestConnect_ConditionBranches(t *testing.T) {
	g := New()

	condition := g.AddNode(models.NodeKindCondition, models.NodeTypeConditionIfThen, 0, 0, nil)
	yes := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, nil)
	no := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendSMS, 0, 280, nil)

	_, err := g.Connect(condition, models.HandleYes, yes)
	require.NoError(t, err)

	_, err = g.Connect(condition, models.HandleNo, no)
	require.NoError(t, err)

	assert.Equal(t, yes, g.Successor(condition, models.HandleYes))
	assert.Equal(t, no, g.Successor(condition, models.HandleNo))
}

func TestConnect_RejectsCycle(t *testing.T) {
	g := New()

	a := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 0, nil)
	b := g.AddNode(models.NodeKindAction, models.NodeTypeActionAddTag, 0, 140, nil)
	c := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendSMS, 0, 280, nil)

	_, err := g.Connect(a, models.HandleDefault, b)
	require.NoError(t, err)

	_, err = g.Connect(b, models.HandleDefault, c)
	require.NoError(t, err)

	_, err = g.Connect(c, models.HandleDefault, a)
	assert.ErrorIs(t, err, ErrCycleDetected)

	// Self loops are cycles too.
	g2 := New()
	loop := g2.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 0, nil)

	_, err = g2.Connect(loop, models.HandleDefault, loop)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestRemoveNode_DropsIncidentEdges(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	middle := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, nil)
	last := g.AddNode(models.NodeKindAction, models.NodeTypeActionAddTag, 0, 280, nil)

	_, err := g.Connect(trigger, models.HandleDefault, middle)
	require.NoError(t, err)

	_, err = g.Connect(middle, models.HandleDefault, last)
	require.NoError(t, err)

	require.NoError(t, g.RemoveNode(middle))

	assert.Nil(t, g.Node(middle))
	assert.Empty(t, g.Edges())
	assert.Len(t, g.Nodes(), 2)

	assert.ErrorIs(t, g.RemoveNode(middle), ErrNodeNotFound)
}

func TestFromWorkflow_CopiesGraph(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-1",
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerTagAdded},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "a1"},
		},
	}

	g := FromWorkflow(workflow)

	require.NotNil(t, g.Node("t1"))
	assert.Equal(t, "a1", g.Successor("t1", models.HandleDefault))

	// Mutating the graph must not touch the source workflow.
	g.Node("t1").Subtype = models.NodeTypeTriggerNewContact
	assert.Equal(t, models.NodeTypeTriggerTagAdded, workflow.Nodes[0].Subtype)
}

func TestValidate_WellFormed(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	action := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, nil)

	_, err := g.Connect(trigger, models.HandleDefault, action)
	require.NoError(t, err)

	result := g.Validate()
	assert.True(t, result.OK())
	assert.Empty(t, result.Violations)
}

func TestValidate_NoTrigger(t *testing.T) {
	g := New()
	g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 0, nil)

	result := g.Validate()
	require.False(t, result.OK())
	assert.Equal(t, CodeNoTrigger, result.Fatal()[0].Code)
}

func TestValidate_MultipleTriggers(t *testing.T) {
	g := New()
	g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	second := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerTagAdded, 0, 140, nil)

	result := g.Validate()
	require.False(t, result.OK())

	fatal := result.Fatal()
	require.Len(t, fatal, 1)
	assert.Equal(t, CodeMultipleTriggers, fatal[0].Code)
	assert.Equal(t, second, fatal[0].NodeID)
}

func TestValidate_TriggerHasIncoming(t *testing.T) {
	// Built directly from a workflow because Connect would allow this edge
	// (it is structurally valid, just semantically forbidden).
	workflow := &models.Workflow{
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerNewContact},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "a1"},
			{ID: "e2", SourceID: "a1", Handle: models.HandleDefault, TargetID: "t1"},
		},
	}

	result := FromWorkflow(workflow).Validate()
	require.False(t, result.OK())

	codes := make([]string, 0)
	for _, v := range result.Fatal() {
		codes = append(codes, v.Code)
	}

	assert.Contains(t, codes, CodeTriggerHasIncoming)
	assert.Contains(t, codes, CodeCycle)
}

func TestValidate_StoredCycle(t *testing.T) {
	workflow := &models.Workflow{
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerNewContact},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail},
			{ID: "a2", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionAddTag},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "a1"},
			{ID: "e2", SourceID: "a1", Handle: models.HandleDefault, TargetID: "a2"},
			{ID: "e3", SourceID: "a2", Handle: models.HandleYes, TargetID: "a1"},
		},
	}

	result := FromWorkflow(workflow).Validate()
	require.False(t, result.OK())

	found := false
	for _, v := range result.Fatal() {
		if v.Code == CodeCycle {
			found = true
		}
	}

	assert.True(t, found)
}

func TestValidate_UnreachableNodeIsWarning(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	wired := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, nil)
	orphan := g.AddNode(models.NodeKindAction, models.NodeTypeActionAddTag, 0, 280, nil)

	_, err := g.Connect(trigger, models.HandleDefault, wired)
	require.NoError(t, err)

	result := g.Validate()
	assert.True(t, result.OK(), "unreachable nodes must not block saving")

	require.Len(t, result.Violations, 1)
	assert.Equal(t, CodeUnreachableNode, result.Violations[0].Code)
	assert.Equal(t, SeverityWarning, result.Violations[0].Severity)
	assert.Equal(t, orphan, result.Violations[0].NodeID)
}

func TestValidate_ConditionIncomplete(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	condition := g.AddNode(models.NodeKindCondition, models.NodeTypeConditionIfThen, 0, 140, nil)
	yes := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 280, nil)

	_, err := g.Connect(trigger, models.HandleDefault, condition)
	require.NoError(t, err)

	_, err = g.Connect(condition, models.HandleYes, yes)
	require.NoError(t, err)

	result := g.Validate()
	assert.True(t, result.OK())

	require.Len(t, result.Violations, 1)
	assert.Equal(t, CodeConditionIncomplete, result.Violations[0].Code)
	assert.Equal(t, condition, result.Violations[0].NodeID)
}
