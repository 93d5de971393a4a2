package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/reapflow/reapflow/pkg/cmd"
	"github.com/reapflow/reapflow/pkg/dispatcher"
	"github.com/reapflow/reapflow/pkg/log"
	"github.com/reapflow/reapflow/pkg/otelhelper"
)

func main() {
	cmdLine := &cli.Command{
		Name:                  "reapflow-dispatcher",
		Usage:                 "Match domain events against active workflow triggers",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("DISPATCHER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for event dedup (primary store dedup when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			tracerProvider, err := otelhelper.InitTracer(ctx, "reapflow-dispatcher")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			dispatcherID := command.String("dispatcher-id")
			if dispatcherID == "" {
				dispatcherID = "dispatcher-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("dispatcher").With("dispatcher_id", dispatcherID)

			logger.InfoContext(ctx, "Initializing ReapFlow Dispatcher")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			if redisURL := command.String("redis-url"); redisURL != "" {
				persistence, err = cmd.WithRedisDedup(persistence, redisURL)
				if err != nil {
					return fmt.Errorf("failed to connect Redis dedup: %w", err)
				}
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), "reapflow-dispatcher", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			d := dispatcher.NewDispatcher(persistence, eventBus, logger, dispatcherID)

			err = d.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start dispatcher", "error", err)
			}

			return nil
		},
	}

	if err := cmdLine.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
