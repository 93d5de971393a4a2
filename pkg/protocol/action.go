// Package protocol defines the contracts between the execution engine and
// the pluggable pieces around it: actions, external collaborators, and the
// content generation capability.
package protocol

import (
	"context"
	"log/slog"

	"github.com/reapflow/reapflow/pkg/models"
)

// Action is one dispatchable side effect. Execute must be safe to retry:
// collaborators receive the execution context's idempotency key and are
// expected to suppress duplicates.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error)
}

// ActionFactory creates action instances for one node subtype from a
// validated configuration map.
type ActionFactory interface {
	Create(config map[string]any) (Action, error)
	ID() string
}
