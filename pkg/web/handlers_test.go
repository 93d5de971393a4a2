package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapflow/reapflow/pkg/assist"
	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/graph"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence/file"
	"github.com/reapflow/reapflow/pkg/registry"
	"github.com/reapflow/reapflow/pkg/scope"
	"github.com/reapflow/reapflow/pkg/services"
	"github.com/reapflow/reapflow/pkg/web"
)

type stubBus struct {
	mu        sync.Mutex
	published []eventbus.Event
}

func (b *stubBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published = append(b.published, event)

	return nil
}

func (b *stubBus) Handle(_ events.EventType, _ eventbus.EventHandler) error { return nil }
func (b *stubBus) Subscribe(_ context.Context) error                        { return nil }
func (b *stubBus) Close() error                                             { return nil }
func (b *stubBus) GenerateID() string                                       { return uuid.New().String() }

func setupTestApp(t *testing.T) (*fiber.App, *services.Workflow, *stubBus) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	bus := &stubBus{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	workflowService := services.NewWorkflow(persistence, reg, bus)
	executionService := services.NewExecution(persistence, bus)

	handlers := web.NewAPIHandlers(
		workflowService,
		executionService,
		assist.NewCannedGenerator(),
		bus,
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
	)

	app := fiber.New()
	app.Get("/node-types", handlers.GetNodeTypes)

	scoped := app.Group("/", web.ScopeMiddleware())

	w := scoped.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Put("/:id/graph", handlers.SaveGraph)
	w.Post("/:id/test-run", handlers.TestRunWorkflow)

	scoped.Post("/events", handlers.IngestEvent)
	scoped.Post("/assist/generate", handlers.GenerateContent)

	return app, workflowService, bus
}

func newScope(userID, subaccountID string) scope.Context {
	return scope.User(userID, subaccountID, scope.RoleManager)
}

func newScopedRequest(method, target string, body any) *http.Request {
	var reader io.Reader

	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Subaccount-ID", "sub-1")
	req.Header.Set("X-Role", "manager")

	return req
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var decoded T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	return decoded
}

func TestScopeMiddleware_RejectsMissingSubaccount(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/", nil)
	req.Header.Set("X-User-ID", "user-1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCreateWorkflow(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(newScopedRequest(http.MethodPost, "/workflows/", services.CreateRequest{
		Name:        "VIP welcome",
		Description: "Greets new VIP contacts",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	workflow := decodeBody[models.Workflow](t, resp)
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "sub-1", workflow.SubaccountID)
	assert.Equal(t, "user-1", workflow.CreatedBy)
	assert.False(t, workflow.Active)
}

func TestCreateWorkflow_ValidationError(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(newScopedRequest(http.MethodPost, "/workflows/", services.CreateRequest{Name: "ab"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(newScopedRequest(http.MethodGet, "/workflows/wf-missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWorkflow_OtherSubaccountHidden(t *testing.T) {
	app, workflowService, _ := setupTestApp(t)

	created, err := workflowService.Create(context.Background(),
		newScope("user-2", "sub-2"), services.CreateRequest{Name: "Other tenant flow"})
	require.NoError(t, err)

	resp, err := app.Test(newScopedRequest(http.MethodGet, "/workflows/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSaveGraph(t *testing.T) {
	app, workflowService, _ := setupTestApp(t)

	created, err := workflowService.Create(context.Background(),
		newScope("user-1", "sub-1"), services.CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	resp, err := app.Test(newScopedRequest(http.MethodPut, "/workflows/"+created.ID+"/graph", web.SaveGraphRequest{
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: models.NodeTypeTriggerTagAdded},
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail, Config: map[string]any{"template_id": "tpl-1"}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceID: "t1", Handle: models.HandleDefault, TargetID: "a1"},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[graph.ValidationResult](t, resp)
	assert.True(t, result.OK())
}

func TestSaveGraph_FatalViolationReturnsResult(t *testing.T) {
	app, workflowService, _ := setupTestApp(t)

	created, err := workflowService.Create(context.Background(),
		newScope("user-1", "sub-1"), services.CreateRequest{Name: "VIP welcome"})
	require.NoError(t, err)

	// No trigger node: a fatal violation the editor needs to render.
	resp, err := app.Test(newScopedRequest(http.MethodPut, "/workflows/"+created.ID+"/graph", web.SaveGraphRequest{
		Nodes: []*models.Node{
			{ID: "a1", Kind: models.NodeKindAction, Subtype: models.NodeTypeActionSendEmail, Config: map[string]any{"template_id": "tpl-1"}},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	result := decodeBody[graph.ValidationResult](t, resp)
	require.NotEmpty(t, result.Violations)
	assert.Equal(t, graph.CodeNoTrigger, result.Violations[0].Code)
}

func TestGetNodeTypes(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/node-types", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]map[string][]models.NodeDescriptor](t, resp)
	palette := body["node_types"]
	assert.NotEmpty(t, palette["triggers"])
	assert.NotEmpty(t, palette["actions"])
	assert.NotEmpty(t, palette["conditions"])
}

func TestIngestEvent(t *testing.T) {
	app, _, bus := setupTestApp(t)

	resp, err := app.Test(newScopedRequest(http.MethodPost, "/events", web.IngestEventRequest{
		Type:    string(events.FormSubmittedEvent),
		Payload: map[string]any{"form_id": "form-1", "contact_id": "contact-1"},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, bus.published, 1)

	event, ok := bus.published[0].(events.DomainEvent)
	require.True(t, ok)
	assert.Equal(t, events.FormSubmittedEvent, event.Type)
	assert.Equal(t, "sub-1", event.SubaccountID, "events are stamped with the caller's subaccount")
	assert.Equal(t, "form-1", event.Payload["form_id"])
}

func TestIngestEvent_UnknownType(t *testing.T) {
	app, _, bus := setupTestApp(t)

	resp, err := app.Test(newScopedRequest(http.MethodPost, "/events", web.IngestEventRequest{
		Type: "crm.contact.teleported",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, bus.published)
}

func TestGenerateContent(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(newScopedRequest(http.MethodPost, "/assist/generate", web.GenerateRequest{
		Prompt: "spring open house",
		Kind:   "email",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	generated := decodeBody[web.GenerateResponse](t, resp)
	assert.Contains(t, generated.Content, "spring open house")
}

func TestGenerateContent_InvalidKind(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(newScopedRequest(http.MethodPost, "/assist/generate", web.GenerateRequest{
		Prompt: "spring open house",
		Kind:   "billboard",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
