package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/registry"
	"github.com/reapflow/reapflow/pkg/scope"
	"github.com/reapflow/reapflow/pkg/services"
)

const scopeLocalKey = "reapflow_scope"

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	generator        protocol.Generator
	eventBus         eventbus.EventBus
	validator        *validator.Validate
	registry         *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	generator protocol.Generator,
	eventBus eventbus.EventBus,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		generator:        generator,
		eventBus:         eventBus,
		validator:        validator,
		registry:         registry,
	}
}

// ScopeMiddleware builds the acting scope from the authenticated identity
// headers set by the gateway. Requests without a subaccount are rejected
// before any handler runs.
func ScopeMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		sc := scope.User(
			c.Get("X-User-ID"),
			c.Get("X-Subaccount-ID"),
			scope.Role(c.Get("X-Role")),
		)

		if err := sc.Validate(); err != nil {
			return forbidden(c, "request is missing subaccount scope")
		}

		c.Locals(scopeLocalKey, sc)

		return c.Next()
	}
}

func requestScope(c fiber.Ctx) scope.Context {
	sc, _ := c.Locals(scopeLocalKey).(scope.Context)

	return sc
}

// --- workflows ---

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context(), requestScope(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.Get(c.Context(), requestScope(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req services.CreateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.Create(c.Context(), requestScope(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req services.UpdateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.Update(c.Context(), requestScope(c), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), requestScope(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Activate(c.Context(), requestScope(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Deactivate(c.Context(), requestScope(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// --- graph ---

func (h *APIHandlers) SaveGraph(c fiber.Ctx) error {
	var req SaveGraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	result, err := h.workflowService.SaveGraph(c.Context(), requestScope(c), c.Params("id"), services.SaveGraphRequest{
		Nodes: req.Nodes,
		Edges: req.Edges,
	})
	if err != nil {
		if result != nil {
			// Fatal violations: return the full validation result so the
			// editor can mark the offending nodes.
			return c.Status(fiber.StatusBadRequest).JSON(result)
		}

		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetSteps(c fiber.Ctx) error {
	steps, err := h.workflowService.Steps(c.Context(), requestScope(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"steps": steps})
}

func (h *APIHandlers) RestoreGraphFromSteps(c fiber.Ctx) error {
	workflow, err := h.workflowService.RestoreGraphFromSteps(c.Context(), requestScope(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// --- executions ---

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	executions, err := h.executionService.ListByWorkflow(c.Context(), requestScope(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.Get(c.Context(), requestScope(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	execution, err := h.executionService.Cancel(c.Context(), requestScope(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) TestRunWorkflow(c fiber.Ctx) error {
	var req TestRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	eventID, err := h.executionService.TestRun(c.Context(), requestScope(c), c.Params("id"), req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": eventID})
}

// --- node palette ---

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	kind := models.NodeKind(c.Query("kind"))

	if kind != "" {
		return c.JSON(fiber.Map{"node_types": h.registry.ListByKind(kind)})
	}

	return c.JSON(fiber.Map{
		"node_types": fiber.Map{
			"triggers":   h.registry.ListByKind(models.NodeKindTrigger),
			"actions":    h.registry.ListByKind(models.NodeKindAction),
			"conditions": h.registry.ListByKind(models.NodeKindCondition),
		},
	})
}

// --- event ingestion ---

// IngestEvent accepts a domain event from an external source (form webhook,
// email-open pixel callback) and publishes it onto the bus. The event is
// stamped with the caller's subaccount; callers cannot inject events into
// other tenants.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req IngestEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	eventType := events.EventType(req.Type)
	if (events.DomainEvent{Type: eventType}).TriggerSubtype() == "" {
		return badRequest(c, "unknown event type: "+req.Type)
	}

	sc := requestScope(c)

	event := events.DomainEvent{
		ID:           h.eventBus.GenerateID(),
		Type:         eventType,
		SubaccountID: sc.SubaccountID,
		Timestamp:    time.Now().UTC(),
		Payload:      req.Payload,
	}

	if err := h.eventBus.Publish(c.Context(), sc.SubaccountID, event); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"event_id": event.ID})
}

// --- assistant ---

func (h *APIHandlers) GenerateContent(c fiber.Ctx) error {
	var req GenerateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	sc := requestScope(c)

	content, err := h.generator.Generate(c.Context(), req.Prompt, protocol.GenerationContext{
		SubaccountID: sc.SubaccountID,
		Kind:         req.Kind,
		Variables:    req.Variables,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(GenerateResponse{Content: content})
}

// --- health ---

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checks := map[string]string{}
	healthy := true

	message, ok := h.workflowService.HealthCheck(c.Context())
	checks["persistence"] = message
	healthy = healthy && ok

	message, ok = h.registry.HealthCheck()
	checks["registry"] = message
	healthy = healthy && ok

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{"healthy": healthy, "checks": checks})
}
