package main

import (
	"context"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/reapflow/reapflow/pkg/cmd"
	"github.com/reapflow/reapflow/pkg/log"
	"github.com/reapflow/reapflow/pkg/mailer"
	"github.com/reapflow/reapflow/pkg/protocol"
	"github.com/reapflow/reapflow/pkg/services"
)

func main() {
	cmdLine := &cli.Command{
		Name:                  "reapflow-notifier",
		Usage:                 "Email account owners about execution failures and activity",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:     "owner-email",
				Usage:    "Address owner notifications are delivered to",
				Required: true,
				Sources:  cli.EnvVars("OWNER_EMAIL"),
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

			logger := log.WithModule("notifier")

			logger.InfoContext(ctx, "Initializing ReapFlow Notifier")

			eventBus := cmd.NewEventBus(command.String("event-bus"), "reapflow-notifier", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			// TODO: resolve the owner address per subaccount once the
			// accounts service exposes a lookup endpoint.
			ownerEmail := command.String("owner-email")
			resolve := func(ctx context.Context, subaccountID string) (string, error) {
				return ownerEmail, nil
			}

			notifier := services.NewNotifier(eventBus, newEmailSender(command, logger), resolve, logger)

			err := notifier.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start notifier", "error", err)
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
