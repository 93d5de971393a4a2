// Package main provides the ReapFlow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/registry"
	"github.com/reapflow/reapflow/pkg/services"
	"github.com/reapflow/reapflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	generator   protocol.Generator
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	generator protocol.Generator,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		generator:   generator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry, a.eventBus)
	executionService := services.NewExecution(a.persistence, a.eventBus)

	handlers := web.NewAPIHandlers(workflowService, executionService, a.generator, a.eventBus, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ReapFlow API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/node-types", handlers.GetNodeTypes)

	scoped := app.Group("/", web.ScopeMiddleware())

	w := scoped.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", handlers.DeactivateWorkflow)

	w.Put("/:id/graph", handlers.SaveGraph)
	w.Get("/:id/steps", handlers.GetSteps)
	w.Post("/:id/restore-from-steps", handlers.RestoreGraphFromSteps)

	w.Get("/:id/executions", handlers.GetWorkflowExecutions)
	w.Post("/:id/test-run", handlers.TestRunWorkflow)

	e := scoped.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	scoped.Post("/events", handlers.IngestEvent)
	scoped.Post("/assist/generate", handlers.GenerateContent)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
