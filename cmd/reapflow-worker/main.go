package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/reapflow/reapflow/pkg/cmd"
	"github.com/reapflow/reapflow/pkg/log"
	"github.com/reapflow/reapflow/pkg/mailer"
	"github.com/reapflow/reapflow/pkg/otelhelper"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/sms"
	"github.com/reapflow/reapflow/pkg/worker"
)

func main() {
	cmdLine := &cli.Command{
		Name:                  "reapflow-worker",
		Usage:                 "Start workers to run workflow executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Name:    "resend-api-key",
				Usage:   "Resend API key for outbound email (in-memory sender when empty)",
				Sources: cli.EnvVars("RESEND_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "sms-gateway-url",
				Usage:   "SMS gateway endpoint (in-memory sender when empty)",
				Sources: cli.EnvVars("SMS_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "sms-api-key",
				Usage:   "API key for the SMS gateway",
				Sources: cli.EnvVars("SMS_API_KEY"),
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

			tracerProvider, err := otelhelper.InitTracer(ctx, "reapflow-worker")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing ReapFlow Worker")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "reapflow-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger, persistence, newEmailSender(command, logger), newSMSSender(command, logger))

			manager := worker.NewManager(workerID, persistence, eventBus, logger, registry)

			err = manager.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker manager", "error", err)
			}

			return nil
		},
	}

	if err := cmdLine.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func newEmailSender(command *cli.Command, logger *slog.Logger) protocol.EmailSender {
	apiKey := command.String("resend-api-key")
	if apiKey == "" {
		return mailer.NewMemorySender()
	}

	return mailer.NewResendSender(apiKey, logger)
}

func newSMSSender(command *cli.Command, logger *slog.Logger) protocol.SMSSender {
	gatewayURL := command.String("sms-gateway-url")
	if gatewayURL == "" {
		return sms.NewMemorySender()
	}

	return sms.NewGatewaySender(gatewayURL, command.String("sms-api-key"), logger)
}
