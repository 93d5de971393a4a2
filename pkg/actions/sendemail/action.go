package sendemail

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

var ErrMissingTemplateID = errors.New("send_email action requires a template_id")

type Action struct {
	templateID string
	to         string
	sender     protocol.EmailSender
	templates  persistence.TemplateRepository
}

func NewAction(config map[string]any, sender protocol.EmailSender, templates persistence.TemplateRepository) (*Action, error) {
	templateID, _ := config["template_id"].(string)
	if templateID == "" {
		return nil, ErrMissingTemplateID
	}

	to, _ := config["to"].(string)

	return &Action{
		templateID: templateID,
		to:         to,
		sender:     sender,
		templates:  templates,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "send_email", "template_id", a.templateID)

	emailTemplate, err := a.templates.GetByID(ctx, scope.Tenant(executionCtx.SubaccountID), a.templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load email template %s: %w", a.templateID, err)
	}

	to, err := a.recipient(executionCtx)
	if err != nil {
		return nil, err
	}

	subject, err := template.RenderString(emailTemplate.Subject, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render email subject: %w", err)
	}

	html, err := template.RenderString(emailTemplate.Body, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render email body: %w", err)
	}

	msg := protocol.EmailMessage{
		To:             to,
		Subject:        subject,
		HTML:           html,
		IdempotencyKey: executionCtx.IdempotencyKey,
	}

	if err := a.sender.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoContext(ctx, "Email dispatched", "to", to)

	return map[string]any{
		"to":      to,
		"subject": subject,
	}, nil
}

// recipient resolves the destination address: an explicit "to" config value
// (template-rendered) wins, otherwise the trigger payload's email field.
func (a *Action) recipient(executionCtx models.ExecutionContext) (string, error) {
	if a.to != "" {
		to, err := template.RenderString(a.to, executionCtx)
		if err != nil {
			return "", fmt.Errorf("failed to render recipient: %w", err)
		}

		if to != "" {
			return to, nil
		}
	}

	if email, ok := executionCtx.TriggerData["email"].(string); ok && email != "" {
		return email, nil
	}

	return "", errors.New("send_email action could not resolve a recipient")
}
