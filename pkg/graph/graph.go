// Package graph holds the editable in-memory representation of one workflow
// graph and its structural invariants: a single trigger entry point, typed
// out-degree limits per handle, and acyclicity.
package graph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/reapflow/reapflow/pkg/models"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrInvalidHandle = errors.New("invalid handle for node kind")
	// ErrDuplicateEdge is returned when the (source, handle) pair already has
	// a target. Trigger and action nodes have a single outgoing edge;
	// condition nodes have at most one edge per yes/no handle.
	ErrDuplicateEdge = errors.New("duplicate edge for source handle")
	// ErrCycleDetected is returned when connecting two nodes would create a
	// cycle. Workflow graphs must stay acyclic so automations cannot loop.
	ErrCycleDetected = errors.New("edge would create a cycle")
)

// Graph is a mutable DAG of workflow nodes. It is not safe for concurrent
// use; a workflow has a single logical editor at a time (last save wins).
type Graph struct {
	nodes map[string]*models.Node
	edges []*models.Edge
	order []string // node insertion order, for deterministic traversal
}

func New() *Graph {
	return &Graph{nodes: make(map[string]*models.Node)}
}

// FromWorkflow builds a graph from a stored workflow's nodes and edges.
func FromWorkflow(workflow *models.Workflow) *Graph {
	g := New()

	for _, node := range workflow.Nodes {
		copied := *node
		g.nodes[node.ID] = &copied
		g.order = append(g.order, node.ID)
	}

	for _, edge := range workflow.Edges {
		copied := *edge
		g.edges = append(g.edges, &copied)
	}

	return g
}

// AddNode inserts a new node and returns its ID. Config is not validated
// against the subtype schema here; that happens at save time through the
// registry.
func (g *Graph) AddNode(kind models.NodeKind, subtype string, x, y int, config map[string]any) string {
	id := uuid.New().String()

	g.nodes[id] = &models.Node{
		ID:        id,
		Kind:      kind,
		Subtype:   subtype,
		Config:    config,
		PositionX: x,
		PositionY: y,
	}
	g.order = append(g.order, id)

	return id
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id string) *models.Node {
	return g.nodes[id]
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*models.Node {
	nodes := make([]*models.Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}

	return nodes
}

// Edges returns all edges.
func (g *Graph) Edges() []*models.Edge {
	return g.edges
}

// Connect adds an edge from sourceID on the given handle to targetID and
// returns the edge ID. The graph is left unchanged on error.
func (g *Graph) Connect(sourceID, handle, targetID string) (string, error) {
	source, ok := g.nodes[sourceID]
	if !ok {
		return "", fmt.Errorf("source %s: %w", sourceID, ErrNodeNotFound)
	}

	if _, ok := g.nodes[targetID]; !ok {
		return "", fmt.Errorf("target %s: %w", targetID, ErrNodeNotFound)
	}

	if !validHandle(source, handle) {
		return "", fmt.Errorf("handle %q on %s node %s: %w", handle, source.Kind, sourceID, ErrInvalidHandle)
	}

	for _, edge := range g.edges {
		if edge.SourceID == sourceID && edge.Handle == handle {
			return "", fmt.Errorf("edge %s[%s]: %w", sourceID, handle, ErrDuplicateEdge)
		}
	}

	if g.reachable(targetID, sourceID) {
		return "", fmt.Errorf("edge %s[%s] -> %s: %w", sourceID, handle, targetID, ErrCycleDetected)
	}

	edge := &models.Edge{
		ID:       uuid.New().String(),
		SourceID: sourceID,
		Handle:   handle,
		TargetID: targetID,
	}
	g.edges = append(g.edges, edge)

	return edge.ID, nil
}

// RemoveNode deletes a node and every edge incident to it.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}

	delete(g.nodes, id)

	for i, nodeID := range g.order {
		if nodeID == id {
			g.order = append(g.order[:i], g.order[i+1:]...)

			break
		}
	}

	kept := g.edges[:0]

	for _, edge := range g.edges {
		if edge.SourceID != id && edge.TargetID != id {
			kept = append(kept, edge)
		}
	}

	g.edges = kept

	return nil
}

// Successor returns the target wired to nodeID's handle, or "".
func (g *Graph) Successor(nodeID, handle string) string {
	for _, edge := range g.edges {
		if edge.SourceID == nodeID && edge.Handle == handle {
			return edge.TargetID
		}
	}

	return ""
}

// reachable reports whether to can be reached from from by following edges.
func (g *Graph) reachable(from, to string) bool {
	if from == to {
		return true
	}

	seen := map[string]bool{from: true}
	stack := []string{from}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, edge := range g.edges {
			if edge.SourceID != current || seen[edge.TargetID] {
				continue
			}

			if edge.TargetID == to {
				return true
			}

			seen[edge.TargetID] = true
			stack = append(stack, edge.TargetID)
		}
	}

	return false
}

func validHandle(node *models.Node, handle string) bool {
	for _, h := range node.Handles() {
		if h == handle {
			return true
		}
	}

	return false
}

func (g *Graph) incomingCount(nodeID string) int {
	count := 0

	for _, edge := range g.edges {
		if edge.TargetID == nodeID {
			count++
		}
	}

	return count
}
