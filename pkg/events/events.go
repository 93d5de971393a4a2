// Package events defines the event types flowing over the bus: CRM domain
// events the trigger dispatcher subscribes to, and execution lifecycle
// notifications the engine publishes.
package events

import (
	"time"

	"github.com/reapflow/reapflow/pkg/models"
)

type EventType string

// Bus topic and message metadata keys.
const (
	Topic                = "reapflow.events"
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	// CRM domain events consumed by the trigger dispatcher.
	ContactCreatedEvent  EventType = "contact.created"
	ContactTagAddedEvent EventType = "contact.tag_added"
	FormSubmittedEvent   EventType = "form.submitted"
	EmailOpenedEvent     EventType = "email.opened"
	ScheduleFiredEvent   EventType = "schedule.fired"

	// Execution lifecycle events.
	ExecutionRequestedEvent EventType = "execution.requested"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Subaccount activity feed.
	ActivityRecordedEvent EventType = "activity.recorded"
)

// triggerSubtypes maps a domain event type to the trigger node subtype it
// activates.
var triggerSubtypes = map[EventType]string{
	ContactCreatedEvent:  models.NodeTypeTriggerNewContact,
	ContactTagAddedEvent: models.NodeTypeTriggerTagAdded,
	FormSubmittedEvent:   models.NodeTypeTriggerFormSubmitted,
	EmailOpenedEvent:     models.NodeTypeTriggerEmailOpened,
	ScheduleFiredEvent:   models.NodeTypeTriggerDateTime,
}

// DomainEventTypes lists the event types the dispatcher subscribes to.
func DomainEventTypes() []EventType {
	types := make([]EventType, 0, len(triggerSubtypes))
	for eventType := range triggerSubtypes {
		types = append(types, eventType)
	}

	return types
}

// EventTypeForSubtype returns the domain event type that activates the given
// trigger subtype, or "" when none does.
func EventTypeForSubtype(subtype string) EventType {
	for eventType, triggerSubtype := range triggerSubtypes {
		if triggerSubtype == subtype {
			return eventType
		}
	}

	return ""
}

// DomainEvent is an occurrence in the CRM (contact created, tag added, form
// submitted, ...) scoped to one subaccount. The payload shape depends on the
// type; contact events carry at least contact_id, email, phone, tags, stage.
type DomainEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	SubaccountID string         `json:"subaccount_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Payload      map[string]any `json:"payload,omitempty"`
}

func (e DomainEvent) GetType() EventType {
	return e.Type
}

// TriggerSubtype returns the trigger node subtype this event activates, or
// "" if the event is not a trigger source.
func (e DomainEvent) TriggerSubtype() string {
	return triggerSubtypes[e.Type]
}

type BaseEvent struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	WorkflowID   string         `json:"workflow_id"`
	SubaccountID string         `json:"subaccount_id"`
	WorkerID     string         `json:"worker_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ExecutionRequested asks a worker to run a freshly created execution. The
// execution record already exists in persistence when this is published.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionSuspended is published when an execution parks on a delay node.
type ExecutionSuspended struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	ResumeAt    time.Time `json:"resume_at"`
}

func (e ExecutionSuspended) GetType() EventType {
	return ExecutionSuspendedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	FailedNodeID string `json:"failed_node_id"`
	Error        string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// ActivityRecorded feeds the subaccount activity log and the owner
// notification email.
type ActivityRecorded struct {
	BaseEvent

	ActivityType string `json:"activity_type"`
	Description  string `json:"description"`
	CreatedBy    string `json:"created_by"`
}

func (e ActivityRecorded) GetType() EventType {
	return ActivityRecordedEvent
}
