package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/protocol"
)

// OwnerResolver maps a subaccount to its owner's notification address.
type OwnerResolver func(ctx context.Context, subaccountID string) (string, error)

// Notifier emails the subaccount owner when something notable happens:
// an execution failed, or an activity was recorded.
type Notifier struct {
	eventBus eventbus.EventBus
	sender   protocol.EmailSender
	resolve  OwnerResolver
	logger   *slog.Logger
}

func NewNotifier(eventBus eventbus.EventBus, sender protocol.EmailSender, resolve OwnerResolver, logger *slog.Logger) *Notifier {
	return &Notifier{
		eventBus: eventBus,
		sender:   sender,
		resolve:  resolve,
		logger:   logger.With("module", "notifier"),
	}
}

// Start registers the notifier's handlers and blocks consuming the bus.
func (n *Notifier) Start(ctx context.Context) error {
	if err := n.eventBus.Handle(events.ExecutionFailedEvent, n.handleExecutionFailed); err != nil {
		return err
	}

	if err := n.eventBus.Handle(events.ActivityRecordedEvent, n.handleActivityRecorded); err != nil {
		return err
	}

	n.logger.InfoContext(ctx, "Notifier started")

	return n.eventBus.Subscribe(ctx)
}

func (n *Notifier) handleExecutionFailed(ctx context.Context, event any) error {
	failed, ok := event.(*events.ExecutionFailed)
	if !ok {
		return nil
	}

	subject := "Workflow execution failed"
	html := fmt.Sprintf(
		"<p>An execution of workflow <strong>%s</strong> failed at node %s.</p><p>Error: %s</p>",
		failed.WorkflowID, failed.FailedNodeID, failed.Error)

	return n.notify(ctx, failed.SubaccountID, subject, html, "failed:"+failed.ExecutionID)
}

func (n *Notifier) handleActivityRecorded(ctx context.Context, event any) error {
	activity, ok := event.(*events.ActivityRecorded)
	if !ok {
		return nil
	}

	subject := "New activity in your account"
	html := fmt.Sprintf("<p>%s</p><p>Recorded by %s.</p>", activity.Description, activity.CreatedBy)

	return n.notify(ctx, activity.SubaccountID, subject, html, "activity:"+activity.ID)
}

func (n *Notifier) notify(ctx context.Context, subaccountID, subject, html, idempotencyKey string) error {
	owner, err := n.resolve(ctx, subaccountID)
	if err != nil {
		n.logger.WarnContext(ctx, "Could not resolve subaccount owner",
			"subaccount_id", subaccountID, "error", err)

		return nil
	}

	msg := protocol.EmailMessage{
		To:             owner,
		Subject:        subject,
		HTML:           html,
		IdempotencyKey: idempotencyKey,
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send owner notification",
			"subaccount_id", subaccountID, "error", err)

		return err
	}

	return nil
}
