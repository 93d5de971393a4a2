package graph

import (
	"fmt"

	"github.com/reapflow/reapflow/pkg/models"
)

// Severity classifies a validation violation. Only fatal violations block
// saving a workflow; warnings are surfaced to the editor.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
)

// Violation codes.
const (
	CodeNoTrigger           = "no_trigger"
	CodeMultipleTriggers    = "multiple_triggers"
	CodeTriggerHasIncoming  = "trigger_has_incoming"
	CodeCycle               = "cycle"
	CodeUnreachableNode     = "unreachable_node"
	CodeConditionIncomplete = "condition_incomplete"
)

// Violation is one structural problem, with enough context (node ID) to
// locate it in the editor.
type Violation struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	NodeID   string   `json:"node_id,omitempty"`
	Message  string   `json:"message"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
}

// OK reports whether the graph has no fatal violations.
func (r ValidationResult) OK() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityFatal {
			return false
		}
	}

	return true
}

// Fatal returns only the fatal violations.
func (r ValidationResult) Fatal() []Violation {
	fatal := make([]Violation, 0)

	for _, v := range r.Violations {
		if v.Severity == SeverityFatal {
			fatal = append(fatal, v)
		}
	}

	return fatal
}

// Validate checks the structural invariants of a well-formed workflow:
// exactly one trigger with no incoming edges, every node reachable from it
// (warning only), and both handles of every condition wired (warning only).
// Cycles cannot occur here because Connect rejects them, but acyclicity is
// rechecked for graphs loaded from storage.
func (g *Graph) Validate() ValidationResult {
	var result ValidationResult

	triggers := make([]*models.Node, 0, 1)

	for _, node := range g.Nodes() {
		if node.Kind == models.NodeKindTrigger {
			triggers = append(triggers, node)
		}
	}

	switch {
	case len(triggers) == 0:
		result.Violations = append(result.Violations, Violation{
			Code:     CodeNoTrigger,
			Severity: SeverityFatal,
			Message:  "workflow has no trigger node",
		})
	case len(triggers) > 1:
		for _, trigger := range triggers[1:] {
			result.Violations = append(result.Violations, Violation{
				Code:     CodeMultipleTriggers,
				Severity: SeverityFatal,
				NodeID:   trigger.ID,
				Message:  "workflow has more than one trigger node",
			})
		}
	}

	for _, trigger := range triggers {
		if g.incomingCount(trigger.ID) > 0 {
			result.Violations = append(result.Violations, Violation{
				Code:     CodeTriggerHasIncoming,
				Severity: SeverityFatal,
				NodeID:   trigger.ID,
				Message:  "trigger node must not have incoming edges",
			})
		}
	}

	if len(triggers) == 1 {
		reachable := g.reachableSet(triggers[0].ID)

		for _, node := range g.Nodes() {
			if !reachable[node.ID] {
				result.Violations = append(result.Violations, Violation{
					Code:     CodeUnreachableNode,
					Severity: SeverityWarning,
					NodeID:   node.ID,
					Message:  fmt.Sprintf("node %s is not reachable from the trigger", node.ID),
				})
			}
		}
	}

	if nodeID, found := g.findCycle(); found {
		result.Violations = append(result.Violations, Violation{
			Code:     CodeCycle,
			Severity: SeverityFatal,
			NodeID:   nodeID,
			Message:  fmt.Sprintf("node %s is part of a cycle", nodeID),
		})
	}

	for _, node := range g.Nodes() {
		if node.Kind != models.NodeKindCondition {
			continue
		}

		for _, handle := range node.Handles() {
			if g.Successor(node.ID, handle) == "" {
				result.Violations = append(result.Violations, Violation{
					Code:     CodeConditionIncomplete,
					Severity: SeverityWarning,
					NodeID:   node.ID,
					Message:  fmt.Sprintf("condition node %s has no %q branch", node.ID, handle),
				})
			}
		}
	}

	return result
}

// findCycle reports one node involved in a cycle, if any. Connect refuses
// cycle-forming edges, so this only fires for graphs loaded from storage or
// submitted wholesale through the API.
func (g *Graph) findCycle() (string, bool) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(g.nodes))

	var visit func(id string) (string, bool)
	visit = func(id string) (string, bool) {
		state[id] = visiting

		for _, edge := range g.edges {
			if edge.SourceID != id {
				continue
			}

			switch state[edge.TargetID] {
			case visiting:
				return edge.TargetID, true
			case unvisited:
				if nodeID, found := visit(edge.TargetID); found {
					return nodeID, true
				}
			}
		}

		state[id] = done

		return "", false
	}

	for _, node := range g.Nodes() {
		if state[node.ID] == unvisited {
			if nodeID, found := visit(node.ID); found {
				return nodeID, true
			}
		}
	}

	return "", false
}

func (g *Graph) reachableSet(from string) map[string]bool {
	seen := map[string]bool{from: true}
	stack := []string{from}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, edge := range g.edges {
			if edge.SourceID == current && !seen[edge.TargetID] {
				seen[edge.TargetID] = true
				stack = append(stack, edge.TargetID)
			}
		}
	}

	return seen
}
