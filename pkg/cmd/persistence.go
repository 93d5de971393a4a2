package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/persistence/file"
	"github.com/reapflow/reapflow/pkg/persistence/postgresql"
)

// NewPersistence picks the persistence implementation from the database URL
// scheme: postgres:// for PostgreSQL, anything else is treated as a file
// path for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}
