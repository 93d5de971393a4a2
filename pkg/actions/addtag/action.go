// Package addtag implements the add_tag workflow action: it appends a tag to
// the contact the execution was triggered for. Adding an existing tag is a
// no-op, so the action is safe to retry.
package addtag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/scope"
	"github.com/reapflow/reapflow/pkg/template"
)

var ErrMissingTag = errors.New("add_tag action requires a tag")

func NewFactory(contacts persistence.ContactRepository) *Factory {
	return &Factory{contacts: contacts}
}

type Factory struct {
	contacts persistence.ContactRepository
}

func (*Factory) ID() string {
	return models.NodeTypeActionAddTag
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config, f.contacts)
}

type Action struct {
	tag      string
	contacts persistence.ContactRepository
}

func NewAction(config map[string]any, contacts persistence.ContactRepository) (*Action, error) {
	tag, _ := config["tag"].(string)
	if tag == "" {
		return nil, ErrMissingTag
	}

	return &Action{tag: tag, contacts: contacts}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "add_tag")

	contactID, ok := executionCtx.TriggerData["contact_id"].(string)
	if !ok || contactID == "" {
		return nil, errors.New("add_tag action requires a contact_id in the trigger payload")
	}

	tag, err := template.RenderString(a.tag, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render tag: %w", err)
	}

	sc := scope.Tenant(executionCtx.SubaccountID)

	if err := a.contacts.AddTag(ctx, sc, contactID, tag); err != nil {
		return nil, fmt.Errorf("failed to add tag to contact %s: %w", contactID, err)
	}

	logger.InfoContext(ctx, "Tag added", "contact_id", contactID, "tag", tag)

	return map[string]any{
		"contact_id": contactID,
		"tag":        tag,
	}, nil
}
