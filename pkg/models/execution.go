package models

import (
	"log/slog"
	"time"
)

// ExecutionStatus is the lifecycle state of one execution instance.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting" // suspended on a delay node
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Execution is one run of a workflow, bound to the graph snapshot taken at
// trigger time so concurrent edits never affect in-flight runs. The cursor,
// dispatched-node set and resume deadline are persisted after every step, so
// a run survives process restarts without repeating side effects.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	SubaccountID string          `json:"subaccount_id"`
	EventID      string          `json:"event_id"`
	Status       ExecutionStatus `json:"status"`

	// Snapshot of the graph at trigger time.
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`

	CursorNodeID string          `json:"cursor_node_id"`
	TriggerData  map[string]any  `json:"trigger_data,omitempty"`
	NodeResults  map[string]any  `json:"node_results,omitempty"`
	Dispatched   map[string]bool `json:"dispatched,omitempty"` // node IDs whose side effect already went out

	FailedNodeID string     `json:"failed_node_id,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	ResumeAt     *time.Time `json:"resume_at,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Node returns the snapshot node with the given ID, or nil.
func (e *Execution) Node(id string) *Node {
	for _, n := range e.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// Successor returns the target of the edge leaving nodeID on the given
// handle, or "" if the handle is unwired.
func (e *Execution) Successor(nodeID, handle string) string {
	for _, edge := range e.Edges {
		if edge.SourceID == nodeID && edge.Handle == handle {
			return edge.TargetID
		}
	}

	return ""
}

// ExecutionContext is the slice of execution state handed to an action. The
// idempotency key is stable across retries of the same node in the same
// execution, so collaborators can suppress duplicate side effects.
type ExecutionContext struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	SubaccountID   string         `json:"subaccount_id"`
	NodeID         string         `json:"node_id"`
	IdempotencyKey string         `json:"idempotency_key"`
	TriggerData    map[string]any `json:"trigger_data,omitempty"`
	NodeResults    map[string]any `json:"node_results,omitempty"`

	Logger *slog.Logger `json:"-"`
}
