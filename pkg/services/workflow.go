package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/graph"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/registry"
	"github.com/reapflow/reapflow/pkg/scope"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, registry *registry.Registry, publisher eventbus.EventPublisher) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
		publisher:   publisher,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the workflows visible to the caller's scope.
func (w *Workflow) List(ctx context.Context, sc scope.Context) ([]*models.Workflow, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScopeSubaccountOnly, err)
	}

	return w.persistence.Workflows().List(ctx, sc)
}

// Get returns one workflow with its full graph.
func (w *Workflow) Get(ctx context.Context, sc scope.Context, id string) (*models.Workflow, error) {
	return w.persistence.Workflows().GetByID(ctx, sc, id)
}

// CreateRequest carries the fields a caller may set on a new workflow.
type CreateRequest struct {
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
}

// Create creates an inactive workflow with an empty graph.
func (w *Workflow) Create(ctx context.Context, sc scope.Context, req CreateRequest) (*models.Workflow, error) {
	if sc.IsSystem() || sc.SubaccountID == "" {
		return nil, ErrScopeSubaccountOnly
	}

	if err := w.validator.Struct(req); err != nil {
		return nil, NewValidationError("create_workflow", "INVALID_WORKFLOW", err.Error(), ErrWorkflowNameRequired)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
	}

	workflow := &models.Workflow{
		ID:           id.String(),
		Name:         req.Name,
		Description:  req.Description,
		SubaccountID: sc.SubaccountID,
		CreatedBy:    sc.UserID,
		Active:       false,
	}

	if err := w.persistence.Workflows().Save(ctx, sc, workflow); err != nil {
		return nil, err
	}

	w.recordActivity(ctx, sc, workflow, "workflow_created", "Workflow "+workflow.Name+" created")

	return workflow, nil
}

// UpdateRequest carries the mutable metadata fields.
type UpdateRequest struct {
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
}

// Update changes name and description. The graph is edited via SaveGraph.
func (w *Workflow) Update(ctx context.Context, sc scope.Context, id string, req UpdateRequest) (*models.Workflow, error) {
	if err := w.validator.Struct(req); err != nil {
		return nil, NewValidationError("update_workflow", "INVALID_WORKFLOW", err.Error(), ErrWorkflowNameRequired)
	}

	workflow, err := w.persistence.Workflows().GetByID(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	workflow.Name = req.Name
	workflow.Description = req.Description

	if err := w.persistence.Workflows().Save(ctx, sc, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Delete soft-deletes the workflow. In-flight executions keep running
// against their snapshot.
func (w *Workflow) Delete(ctx context.Context, sc scope.Context, id string) error {
	workflow, err := w.persistence.Workflows().GetByID(ctx, sc, id)
	if err != nil {
		return err
	}

	if err := w.persistence.Workflows().Delete(ctx, sc, id); err != nil {
		return err
	}

	w.recordActivity(ctx, sc, workflow, "workflow_deleted", "Workflow "+workflow.Name+" deleted")

	return nil
}

// SaveGraphRequest replaces a workflow's graph wholesale.
type SaveGraphRequest struct {
	Nodes []*models.Node `json:"nodes"`
	Edges []*models.Edge `json:"edges"`
}

// SaveGraph validates and persists a new graph for the workflow: every
// subtype must be registered and its config must satisfy the registered
// schema, and the graph must pass structural validation. Warnings are
// returned alongside success; fatal violations block the save. The legacy
// step projection is rewritten in the same operation.
func (w *Workflow) SaveGraph(ctx context.Context, sc scope.Context, workflowID string, req SaveGraphRequest) (*graph.ValidationResult, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, sc, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Active {
		return nil, ErrWorkflowActive
	}

	for _, node := range req.Nodes {
		if _, err := w.registry.Describe(node.Subtype); err != nil {
			return nil, NewValidationError("save_graph", "UNKNOWN_SUBTYPE",
				fmt.Sprintf("node %s has unknown subtype %q", node.ID, node.Subtype), ErrUnknownNodeSubtype)
		}

		if err := w.registry.ValidateConfig(node.Subtype, node.Config); err != nil {
			return nil, NewValidationError("save_graph", "INVALID_NODE_CONFIG", err.Error(), ErrInvalidRequest)
		}
	}

	candidate := graph.FromWorkflow(&models.Workflow{Nodes: req.Nodes, Edges: req.Edges})
	result := candidate.Validate()

	if !result.OK() {
		return &result, graphInvalidError(result)
	}

	workflow.Nodes = req.Nodes
	workflow.Edges = req.Edges

	if err := w.persistence.Workflows().Save(ctx, sc, workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.Workflows().ReplaceSteps(ctx, sc, workflowID, candidate.Steps(workflowID)); err != nil {
		return nil, err
	}

	return &result, nil
}

// Steps returns the legacy ordered-step projection of the workflow.
func (w *Workflow) Steps(ctx context.Context, sc scope.Context, workflowID string) ([]*models.WorkflowStep, error) {
	return w.persistence.Workflows().StepsByWorkflow(ctx, sc, workflowID)
}

// RestoreGraphFromSteps rebuilds a workflow's graph from its legacy step
// rows: a linear chain with synthesized positions. Used when migrating
// workflows that predate explicit edges.
func (w *Workflow) RestoreGraphFromSteps(ctx context.Context, sc scope.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, sc, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Active {
		return nil, ErrWorkflowActive
	}

	steps, err := w.persistence.Workflows().StepsByWorkflow(ctx, sc, workflowID)
	if err != nil {
		return nil, err
	}

	restored := graph.FromSteps(steps)
	workflow.Nodes = restored.Nodes()
	workflow.Edges = restored.Edges()

	if err := w.persistence.Workflows().Save(ctx, sc, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Activate turns the workflow live. A workflow whose graph has fatal
// violations cannot be activated.
func (w *Workflow) Activate(ctx context.Context, sc scope.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	result := graph.FromWorkflow(workflow).Validate()
	if !result.OK() {
		return nil, fmt.Errorf("%w: %s", ErrActivationBlocked, violationSummary(result))
	}

	workflow.Active = true

	if err := w.persistence.Workflows().Save(ctx, sc, workflow); err != nil {
		return nil, err
	}

	w.recordActivity(ctx, sc, workflow, "workflow_activated", "Workflow "+workflow.Name+" activated")

	return workflow, nil
}

// Deactivate takes the workflow out of trigger matching. In-flight
// executions are not cancelled.
func (w *Workflow) Deactivate(ctx context.Context, sc scope.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	workflow.Active = false

	if err := w.persistence.Workflows().Save(ctx, sc, workflow); err != nil {
		return nil, err
	}

	w.recordActivity(ctx, sc, workflow, "workflow_deactivated", "Workflow "+workflow.Name+" deactivated")

	return workflow, nil
}

func (w *Workflow) recordActivity(ctx context.Context, sc scope.Context, workflow *models.Workflow, activityType, description string) {
	if w.publisher == nil {
		return
	}

	event := events.ActivityRecorded{
		BaseEvent: events.BaseEvent{
			ID:           uuid.New().String(),
			Timestamp:    time.Now().UTC(),
			WorkflowID:   workflow.ID,
			SubaccountID: workflow.SubaccountID,
		},
		ActivityType: activityType,
		Description:  description,
		CreatedBy:    sc.UserID,
	}

	// Activity publishing is best effort; the mutation already committed.
	_ = w.publisher.Publish(ctx, workflow.ID, event)
}

func graphInvalidError(result graph.ValidationResult) error {
	return fmt.Errorf("%w: %s", ErrGraphInvalid, violationSummary(result))
}

func violationSummary(result graph.ValidationResult) string {
	fatal := result.Fatal()
	messages := make([]string, 0, len(fatal))

	for _, violation := range fatal {
		messages = append(messages, violation.Message)
	}

	return strings.Join(messages, "; ")
}
