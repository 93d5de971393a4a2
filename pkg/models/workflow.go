// Package models defines the core domain models for node-based workflow automation.
package models

import "time"

// Workflow is a named automation graph owned by a subaccount. Only active
// workflows are considered by the trigger dispatcher.
type Workflow struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"           validate:"required,min=3"`
	Description  string     `json:"description"`
	SubaccountID string     `json:"subaccount_id"  validate:"required"`
	CreatedBy    string     `json:"created_by"     validate:"required"`
	Active       bool       `json:"active"`
	Nodes        []*Node    `json:"nodes"`
	Edges        []*Edge    `json:"edges"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// TriggerNode returns the workflow's trigger node, or nil if none exists.
func (w *Workflow) TriggerNode() *Node {
	for _, n := range w.Nodes {
		if n.Kind == NodeKindTrigger {
			return n
		}
	}

	return nil
}

// Node returns the node with the given ID, or nil.
func (w *Workflow) Node(id string) *Node {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}
