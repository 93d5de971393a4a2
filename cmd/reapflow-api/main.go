package main

import (
	"context"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/reapflow/reapflow/pkg/assist"
	"github.com/reapflow/reapflow/pkg/cmd"
	"github.com/reapflow/reapflow/pkg/log"
	"github.com/reapflow/reapflow/pkg/mailer"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/sms"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	cmdLine := &cli.Command{
		Name:                  "reapflow-api",
		Usage:                 "Create and manage marketing workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "assist-endpoint",
				Usage:   "Content generation endpoint (canned generator when empty)",
				Sources: cli.EnvVars("ASSIST_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "assist-api-key",
				Usage:   "API key for the content generation endpoint",
				Sources: cli.EnvVars("ASSIST_API_KEY"),
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

			logger.InfoContext(ctx, "Initializing ReapFlow API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "reapflow-api", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger, persistence, mailer.NewMemorySender(), sms.NewMemorySender())

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
				newGenerator(command, logger),
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := cmdLine.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

// newGenerator returns the HTTP generator when an endpoint is configured,
// the canned one otherwise.
func newGenerator(command *cli.Command, logger *slog.Logger) protocol.Generator {
	endpoint := command.String("assist-endpoint")
	if endpoint == "" {
		return assist.NewCannedGenerator()
	}

	return assist.NewHTTPGenerator(endpoint, command.String("assist-api-key"), logger)
}
