package models

import "time"

// WorkflowStep is the flattened projection of a node used by the legacy
// workflow_steps table: one row per node with a total order consistent with
// a topological traversal at save time. Edges are not represented here, so
// branching graphs cannot be reconstructed from steps alone.
type WorkflowStep struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"   validate:"required"`
	StepOrder     int            `json:"step_order"    validate:"min=1"`
	Kind          NodeKind       `json:"step_type"     validate:"required"`
	Subtype       string         `json:"subtype"       validate:"required"`
	Configuration map[string]any `json:"configuration"`
	CreatedAt     time.Time      `json:"created_at"`
}
