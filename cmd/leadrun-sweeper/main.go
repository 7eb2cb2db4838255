// Package main provides the delayed trigger sweeper. It promotes due
// after_time triggers on a cron cadence.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/leadrun/leadrun/pkg/cmd"
	"github.com/leadrun/leadrun/pkg/flow"
	"github.com/leadrun/leadrun/pkg/gateways/memory"
	"github.com/leadrun/leadrun/pkg/log"
	"github.com/leadrun/leadrun/pkg/queue"
	"github.com/leadrun/leadrun/pkg/trigger"
)

func main() {
	command := &cli.Command{
		Name:                  "leadrun-sweeper",
		EnableShellCompletion: true,
		Usage:                 "Promote due delayed triggers on a schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
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
				Name:    "schedule",
				Usage:   "Cron expression for the sweep cadence",
				Value:   "* * * * *",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
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

			logger := log.WithModule("leadrun-sweeper")

			logger.InfoContext(ctx, "Initializing Leadrun Sweeper")

			if _, err := cron.ParseStandard(command.String("schedule")); err != nil {
				return err
			}

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "leadrun-sweeper", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
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
			executor := flow.NewExecutor(registry, store, logger, flow.WithCounter(store))

			router := trigger.NewRouter(
				store,
				leads,
				notifications,
				tasks,
				executor,
				store,
				logger,
				trigger.WithEventBus(eventBus),
			)

			sweeper := queue.NewSweeper(store, router, logger)

			scheduler := cron.New(cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			))

			_, err = scheduler.AddFunc(command.String("schedule"), func() {
				stats, err := sweeper.Sweep(ctx, time.Now().UTC())
				if err != nil {
					logger.ErrorContext(ctx, "Sweep failed", "error", err)

					return
				}

				if stats.Promoted > 0 {
					logger.InfoContext(ctx, "Sweep completed",
						"promoted", stats.Promoted,
						"done", stats.Done,
						"failed", stats.Failed,
					)
				}
			})
			if err != nil {
				return err
			}

			scheduler.Start()
			defer scheduler.Stop()

			logger.InfoContext(ctx, "Sweeper started", "schedule", command.String("schedule"))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down sweeper...")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
