package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapflow/reapflow/pkg/models"
)

func TestSteps_LinearWalkFromTrigger(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	email := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, map[string]any{"template_id": "tpl-1"})
	tag := g.AddNode(models.NodeKindAction, models.NodeTypeActionAddTag, 0, 280, map[string]any{"tag": "welcomed"})

	_, err := g.Connect(trigger, models.HandleDefault, email)
	require.NoError(t, err)

	_, err = g.Connect(email, models.HandleDefault, tag)
	require.NoError(t, err)

	steps := g.Steps("wf-1")
	require.Len(t, steps, 3)

	assert.Equal(t, []string{trigger, email, tag}, []string{steps[0].ID, steps[1].ID, steps[2].ID})
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].StepOrder, steps[1].StepOrder, steps[2].StepOrder})
	assert.Equal(t, "wf-1", steps[0].WorkflowID)
	assert.Equal(t, map[string]any{"tag": "welcomed"}, steps[2].Configuration)
}

func TestSteps_YesBranchBeforeNoBranch(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerFormSubmitted, 0, 0, nil)
	condition := g.AddNode(models.NodeKindCondition, models.NodeTypeConditionIfThen, 0, 140, nil)
	yes := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, -100, 280, nil)
	no := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendSMS, 100, 280, nil)

	_, err := g.Connect(trigger, models.HandleDefault, condition)
	require.NoError(t, err)

	// Wire no before yes to prove ordering comes from the handles, not the
	// edge insertion order.
	_, err = g.Connect(condition, models.HandleNo, no)
	require.NoError(t, err)

	_, err = g.Connect(condition, models.HandleYes, yes)
	require.NoError(t, err)

	steps := g.Steps("wf-1")
	require.Len(t, steps, 4)
	assert.Equal(t, []string{trigger, condition, yes, no}, []string{steps[0].ID, steps[1].ID, steps[2].ID, steps[3].ID})
}

func TestSteps_OrphansAppendedAfterWalk(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, nil)
	wired := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, nil)
	orphan := g.AddNode(models.NodeKindAction, models.NodeTypeActionAddTag, 0, 280, nil)

	_, err := g.Connect(trigger, models.HandleDefault, wired)
	require.NoError(t, err)

	steps := g.Steps("wf-1")
	require.Len(t, steps, 3)
	assert.Equal(t, orphan, steps[2].ID)
}

func TestFromSteps_RebuildsNodesWithoutEdges(t *testing.T) {
	g := New()

	trigger := g.AddNode(models.NodeKindTrigger, models.NodeTypeTriggerNewContact, 0, 0, map[string]any{"tag": "lead"})
	action := g.AddNode(models.NodeKindAction, models.NodeTypeActionSendEmail, 0, 140, map[string]any{"template_id": "tpl-1"})

	_, err := g.Connect(trigger, models.HandleDefault, action)
	require.NoError(t, err)

	restored := FromSteps(g.Steps("wf-1"))

	require.Len(t, restored.Nodes(), 2)
	assert.Empty(t, restored.Edges())

	restoredTrigger := restored.Node(trigger)
	require.NotNil(t, restoredTrigger)
	assert.Equal(t, models.NodeKindTrigger, restoredTrigger.Kind)
	assert.Equal(t, map[string]any{"tag": "lead"}, restoredTrigger.Config)

	// The restored layout is synthesized, never (0, 0) for later rows.
	assert.NotZero(t, restored.Node(action).PositionY)
}

func TestFromSteps_GeneratesMissingIDs(t *testing.T) {
	steps := []*models.WorkflowStep{
		{WorkflowID: "wf-1", StepOrder: 1, Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerNewContact},
	}

	g := FromSteps(steps)

	nodes := g.Nodes()
	require.Len(t, nodes, 1)
	assert.NotEmpty(t, nodes[0].ID)
}
