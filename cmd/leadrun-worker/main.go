package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/leadrun/leadrun/pkg/cmd"
	"github.com/leadrun/leadrun/pkg/flow"
	"github.com/leadrun/leadrun/pkg/gateways/memory"
	"github.com/leadrun/leadrun/pkg/log"
	"github.com/leadrun/leadrun/pkg/otelhelper"
	"github.com/leadrun/leadrun/pkg/trigger"
)

func main() {
	command := &cli.Command{
		Name:                  "leadrun-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume CRM events and run automations",
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
				Usage:    "Event bus type (gochannel, kafka)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Redis URL for the delayed trigger queue (defaults to the database)",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "crm-database-url",
				Usage:   "PostgreSQL URL for the CRM lead database (in-memory if not provided)",
				Sources: cli.EnvVars("CRM_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing (exports via OTLP)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("leadrun-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Leadrun Worker")

			var tracerOpts struct {
				flow    []flow.Option
				trigger []trigger.Option
			}

			if command.Bool("tracing") {
				tracerProvider, err := otelhelper.InitTracer(ctx, "leadrun-worker")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					err := tracerProvider.Shutdown(ctx)
					if err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				tracer := tracerProvider.Tracer("leadrun-worker")
				tracerOpts.flow = append(tracerOpts.flow, flow.WithTracer(tracer))
				tracerOpts.trigger = append(tracerOpts.trigger, trigger.WithTracer(tracer))
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "leadrun-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store, err := cmd.NewStore(ctx, logger, command.String("database-url"), command.String("queue-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			leads, err := cmd.NewLeadStore(ctx, logger, command.String("crm-database-url"))
			if err != nil {
				return err
			}

			if closer, ok := leads.(io.Closer); ok {
				defer func() {
					err := closer.Close()
					if err != nil {
						logger.ErrorContext(ctx, "Failed to close lead store", "error", err)
					}
				}()
			}

			messaging := memory.NewMessagingGateway()
			notifications := memory.NewNotificationService(logger)
			tasks := memory.NewTaskService()

			registry := cmd.NewRegistry(logger, leads, messaging)

			executorOpts := append([]flow.Option{flow.WithCounter(store)}, tracerOpts.flow...)
			executor := flow.NewExecutor(registry, store, logger, executorOpts...)

			routerOpts := append([]trigger.Option{trigger.WithEventBus(eventBus)}, tracerOpts.trigger...)
			router := trigger.NewRouter(
				store,
				leads,
				notifications,
				tasks,
				executor,
				store,
				logger,
				routerOpts...,
			)

			worker := NewWorker(workerID, eventBus, router, logger)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
