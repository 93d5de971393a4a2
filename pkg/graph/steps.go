package graph

import (
	"time"

	"github.com/google/uuid"
	"github.com/reapflow/reapflow/pkg/models"
)

// Layout constants for positions synthesized by FromSteps.
const (
	layoutColumnX  = 250
	layoutRowGap   = 140
	layoutStaggerX = 40
)

// Steps flattens the graph into the ordered step list the workflow_steps
// table stores: a depth-first walk from the trigger, yes branch before no
// branch, one step per node with a monotonically increasing order index.
// Edges are not represented in this projection, so only linear graphs
// round-trip; it exists for compatibility with the legacy table contract.
// Nodes unreachable from the trigger are appended after the walk in
// insertion order, matching the permissive save behavior of the editor.
func (g *Graph) Steps(workflowID string) []*models.WorkflowStep {
	visited := make(map[string]bool)
	ordered := make([]*models.Node, 0, len(g.nodes))

	var walk func(id string)
	walk = func(id string) {
		node := g.nodes[id]
		if node == nil || visited[id] {
			return
		}

		visited[id] = true
		ordered = append(ordered, node)

		for _, handle := range node.Handles() {
			if next := g.Successor(id, handle); next != "" {
				walk(next)
			}
		}
	}

	for _, node := range g.Nodes() {
		if node.Kind == models.NodeKindTrigger {
			walk(node.ID)

			break
		}
	}

	for _, node := range g.Nodes() {
		if !visited[node.ID] {
			visited[node.ID] = true
			ordered = append(ordered, node)
		}
	}

	now := time.Now().UTC()
	steps := make([]*models.WorkflowStep, 0, len(ordered))

	for i, node := range ordered {
		steps = append(steps, &models.WorkflowStep{
			ID:            node.ID,
			WorkflowID:    workflowID,
			StepOrder:     i + 1,
			Kind:          node.Kind,
			Subtype:       node.Subtype,
			Configuration: node.Config,
			CreatedAt:     now,
		})
	}

	return steps
}

// FromSteps rebuilds a graph from an ordered step list. Edges are not stored
// in the step projection and are not inferred; nodes come back unconnected
// with a synthesized staggered vertical layout. Callers that persisted edges
// should prefer FromWorkflow.
func FromSteps(steps []*models.WorkflowStep) *Graph {
	g := New()

	for i, step := range steps {
		id := step.ID
		if id == "" {
			id = uuid.New().String()
		}

		g.nodes[id] = &models.Node{
			ID:        id,
			Kind:      step.Kind,
			Subtype:   step.Subtype,
			Config:    step.Configuration,
			PositionX: layoutColumnX + (i%2)*layoutStaggerX,
			PositionY: i * layoutRowGap,
		}
		g.order = append(g.order, id)
	}

	return g
}
