// Package web provides the REST API for workflow management: CRUD, graph
// editing, execution queries, the node palette, the event ingestion
// endpoint, and the content assistant.
package web

import "github.com/reapflow/reapflow/pkg/models"

// SaveGraphRequest replaces a workflow's graph wholesale.
type SaveGraphRequest struct {
	Nodes []*models.Node `json:"nodes" validate:"required,dive"`
	Edges []*models.Edge `json:"edges" validate:"dive"`
}

// TestRunRequest carries a sample trigger payload for a manual run.
type TestRunRequest struct {
	Payload map[string]any `json:"payload"`
}

// IngestEventRequest is an externally submitted domain event, e.g. a form
// submission webhook or an email-open pixel callback.
type IngestEventRequest struct {
	Type    string         `json:"type"    validate:"required"`
	Payload map[string]any `json:"payload"`
}

// GenerateRequest asks the content assistant for copy.
type GenerateRequest struct {
	Prompt    string         `json:"prompt" validate:"required,min=3"`
	Kind      string         `json:"kind"   validate:"required,oneof=email sms ad post"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GenerateResponse is the assistant's output.
type GenerateResponse struct {
	Content string `json:"content"`
}
