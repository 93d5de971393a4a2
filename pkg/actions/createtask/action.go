// Package createtask implements the create_task workflow action: it opens a
// to-do in the subaccount, optionally linked to the triggering contact.
package createtask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/scope"
	"github.com/reapflow/reapflow/pkg/template"
)

var ErrMissingTitle = errors.New("create_task action requires a title")

func NewFactory(tasks persistence.TaskRepository) *Factory {
	return &Factory{tasks: tasks}
}

type Factory struct {
	tasks persistence.TaskRepository
}

func (*Factory) ID() string {
	return models.NodeTypeActionCreateTask
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config, f.tasks)
}

type Action struct {
	title       string
	description string
	dueInDays   int
	tasks       persistence.TaskRepository
}

func NewAction(config map[string]any, tasks persistence.TaskRepository) (*Action, error) {
	title, _ := config["title"].(string)
	if title == "" {
		return nil, ErrMissingTitle
	}

	description, _ := config["description"].(string)

	dueInDays := 0
	if v, ok := config["due_in_days"].(float64); ok {
		dueInDays = int(v)
	}

	return &Action{
		title:       title,
		description: description,
		dueInDays:   dueInDays,
		tasks:       tasks,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "create_task")

	title, err := template.RenderString(a.title, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render task title: %w", err)
	}

	description, err := template.RenderString(a.description, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render task description: %w", err)
	}

	// Deterministic ID per (execution, node), so a retried create does not
	// produce a second task.
	taskID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(executionCtx.IdempotencyKey)).String()

	task := &models.Task{
		ID:           taskID,
		SubaccountID: executionCtx.SubaccountID,
		Title:        title,
		Description:  description,
	}

	if contactID, ok := executionCtx.TriggerData["contact_id"].(string); ok {
		task.ContactID = contactID
	}

	if a.dueInDays > 0 {
		dueAt := time.Now().UTC().AddDate(0, 0, a.dueInDays)
		task.DueAt = &dueAt
	}

	if err := a.tasks.Create(ctx, scope.Tenant(executionCtx.SubaccountID), task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.InfoContext(ctx, "Task created", "task_id", task.ID, "title", title)

	return map[string]any{
		"task_id": task.ID,
		"title":   title,
	}, nil
}
