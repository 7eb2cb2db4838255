package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/leadrun/leadrun/pkg/eventbus"
	"github.com/leadrun/leadrun/pkg/events"
	"github.com/leadrun/leadrun/pkg/trigger"
)

// Worker consumes domain events from the bus and hands them to the trigger
// router.
type Worker struct {
	id       string
	logger   *slog.Logger
	eventBus eventbus.EventBus
	router   *trigger.Router
}

func NewWorker(id string, eventBus eventbus.EventBus, router *trigger.Router, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		logger:   logger.With("module", "leadrun-worker", "worker_id", id),
		eventBus: eventBus,
		router:   router,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	err := w.eventBus.Handle(events.LeadStageEnteredEvent, w.handleStageEntered)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.LeadStageExitedEvent, w.handleStageExited)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.LeadMessageReceivedEvent, w.handleMessageReceived)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *Worker) handleStageEntered(ctx context.Context, event any) error {
	entered, ok := event.(*events.LeadStageEntered)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for LeadStageEntered")

		return nil
	}

	logger := w.logger.With(
		"lead_id", entered.LeadID,
		"stage_id", entered.StageID,
		"event_id", entered.ID,
	)
	logger.InfoContext(ctx, "Processing stage entered event")

	err := w.router.HandleStageEntered(ctx, entered.LeadID, entered.StageID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to route stage entered event", "error", err)

		return err
	}

	return nil
}

func (w *Worker) handleStageExited(ctx context.Context, event any) error {
	exited, ok := event.(*events.LeadStageExited)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for LeadStageExited")

		return nil
	}

	logger := w.logger.With(
		"lead_id", exited.LeadID,
		"stage_id", exited.StageID,
		"event_id", exited.ID,
	)
	logger.InfoContext(ctx, "Processing stage exited event")

	err := w.router.HandleStageExited(ctx, exited.LeadID, exited.StageID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to route stage exited event", "error", err)

		return err
	}

	return nil
}

func (w *Worker) handleMessageReceived(ctx context.Context, event any) error {
	received, ok := event.(*events.LeadMessageReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for LeadMessageReceived")

		return nil
	}

	logger := w.logger.With(
		"lead_id", received.LeadID,
		"event_id", received.ID,
	)
	logger.InfoContext(ctx, "Processing message received event")

	err := w.router.HandleMessageReceived(ctx, received.LeadID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to route message received event", "error", err)

		return err
	}

	return nil
}
