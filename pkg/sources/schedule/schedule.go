// Package schedule emits schedule.fired domain events for active workflows
// with a date_time trigger, driven by each trigger's cron expression.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reapflow/reapflow/pkg/eventbus"
	"github.com/reapflow/reapflow/pkg/events"
	"github.com/reapflow/reapflow/pkg/models"
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/scope"
)

const defaultRescanInterval = time.Minute

// Source scans active workflows and keeps one cron entry per date_time
// trigger. Workflows activated, edited, or deactivated are picked up on the
// next rescan.
type Source struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	interval    time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID // workflowID -> entry
	specs   map[string]string       // workflowID -> cron spec
}

func NewSource(persistence persistence.Persistence, eventBus eventbus.EventBus, logger *slog.Logger) *Source {
	return &Source{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "schedule_source"),
		interval:    defaultRescanInterval,
		cron:        cron.New(),
		entries:     make(map[string]cron.EntryID),
		specs:       make(map[string]string),
	}
}

// Start blocks until ctx is done, rescanning workflows every interval.
func (s *Source) Start(ctx context.Context) error {
	s.cron.Start()
	defer s.cron.Stop()

	s.rescan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Schedule source started", "rescan_interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Schedule source stopped")

			return nil
		case <-ticker.C:
			s.rescan(ctx)
		}
	}
}

func (s *Source) rescan(ctx context.Context) {
	workflows, err := s.persistence.Workflows().List(ctx, scope.System())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list workflows", "error", err)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]bool)

	for _, workflow := range workflows {
		if !workflow.Active {
			continue
		}

		trigger := workflow.TriggerNode()
		if trigger == nil || trigger.Subtype != models.NodeTypeTriggerDateTime {
			continue
		}

		spec, _ := trigger.Config["cron"].(string)
		if spec == "" {
			continue
		}

		current[workflow.ID] = true

		if s.specs[workflow.ID] == spec {
			continue
		}

		if entryID, ok := s.entries[workflow.ID]; ok {
			s.cron.Remove(entryID)
		}

		entryID, err := s.cron.AddFunc(spec, s.fire(workflow.ID, workflow.SubaccountID))
		if err != nil {
			s.logger.WarnContext(ctx, "Invalid cron expression",
				"workflow_id", workflow.ID, "cron", spec, "error", err)

			continue
		}

		s.entries[workflow.ID] = entryID
		s.specs[workflow.ID] = spec

		s.logger.InfoContext(ctx, "Schedule registered", "workflow_id", workflow.ID, "cron", spec)
	}

	for workflowID, entryID := range s.entries {
		if !current[workflowID] {
			s.cron.Remove(entryID)
			delete(s.entries, workflowID)
			delete(s.specs, workflowID)

			s.logger.InfoContext(ctx, "Schedule removed", "workflow_id", workflowID)
		}
	}
}

func (s *Source) fire(workflowID, subaccountID string) func() {
	return func() {
		ctx := context.Background()

		event := events.DomainEvent{
			ID:           s.eventBus.GenerateID(),
			Type:         events.ScheduleFiredEvent,
			SubaccountID: subaccountID,
			Timestamp:    time.Now().UTC(),
			Payload: map[string]any{
				"workflow_id": workflowID,
				"fired_at":    time.Now().UTC().Format(time.RFC3339),
			},
		}

		if err := s.eventBus.Publish(ctx, subaccountID, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish schedule event",
				"workflow_id", workflowID, "error", err)
		}
	}
}
