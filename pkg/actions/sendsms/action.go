package sendsms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/template"
)

var ErrMissingMessage = errors.New("send_sms action requires a message")

type Action struct {
	message string
	to      string
	sender  protocol.SMSSender
}

func NewAction(config map[string]any, sender protocol.SMSSender) (*Action, error) {
	message, _ := config["message"].(string)
	if message == "" {
		return nil, ErrMissingMessage
	}

	to, _ := config["to"].(string)

	return &Action{message: message, to: to, sender: sender}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "send_sms")

	to, err := a.recipient(executionCtx)
	if err != nil {
		return nil, err
	}

	body, err := template.RenderString(a.message, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render SMS body: %w", err)
	}

	msg := protocol.SMSMessage{
		To:             to,
		Body:           body,
		IdempotencyKey: executionCtx.IdempotencyKey,
	}

	if err := a.sender.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send SMS: %w", err)
	}

	logger.InfoContext(ctx, "SMS dispatched", "to", to)

	return map[string]any{"to": to}, nil
}

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

	if phone, ok := executionCtx.TriggerData["phone"].(string); ok && phone != "" {
		return phone, nil
	}

	return "", errors.New("send_sms action could not resolve a recipient")
}
