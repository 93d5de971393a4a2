package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/reapflow/reapflow/pkg/persistence"
)

const defaultResumeInterval = 15 * time.Second

// Resumer polls for waiting executions whose delay has elapsed and hands
// them back to the engine. Run's terminal and not-yet-due checks make double
// pickup across worker instances harmless.
type Resumer struct {
	executions persistence.ExecutionRepository
	engine     *Engine
	logger     *slog.Logger
	interval   time.Duration
}

func NewResumer(executions persistence.ExecutionRepository, engine *Engine, logger *slog.Logger) *Resumer {
	return &Resumer{
		executions: executions,
		engine:     engine,
		logger:     logger.With("module", "resumer"),
		interval:   defaultResumeInterval,
	}
}

// WithInterval overrides the poll interval, mainly for tests.
func (r *Resumer) WithInterval(interval time.Duration) *Resumer {
	r.interval = interval

	return r
}

// Start blocks until ctx is done, resuming due executions every interval.
func (r *Resumer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "Resumer started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Resumer stopped")

			return
		case <-ticker.C:
			r.resumeDue(ctx)
		}
	}
}

func (r *Resumer) resumeDue(ctx context.Context) {
	due, err := r.executions.ListDue(ctx, time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list due executions", "error", err)

		return
	}

	for _, execution := range due {
		r.logger.InfoContext(ctx, "Resuming execution", "execution_id", execution.ID)

		if err := r.engine.Run(ctx, execution.ID); err != nil {
			r.logger.ErrorContext(ctx, "Failed to resume execution",
				"execution_id", execution.ID, "error", err)
		}
	}
}
