package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
	"github.com/leadrun/leadrun/pkg/persistence/file"
	"github.com/leadrun/leadrun/pkg/persistence/postgresql"
	"github.com/leadrun/leadrun/pkg/persistence/redisqueue"
)

// NewPersistence creates the persistence layer from a database URL. A
// postgres:// URL selects PostgreSQL, anything else is treated as a
// file-backed root directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}

// NewStore creates the persistence layer, optionally replacing its trigger
// queue with a Redis-backed one. An empty queue URL keeps the database as
// the queue, which is the single-box default.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL, queueURL string) (persistence.Persistence, error) {
	store, err := NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	if queueURL == "" {
		return store, nil
	}

	queue, err := redisqueue.NewQueue(ctx, logger, queueURL)
	if err != nil {
		return nil, err
	}

	return &queueOverride{Persistence: store, queue: queue}, nil
}

// queueOverride serves trigger queue operations from a dedicated queue while
// everything else stays on the primary store.
type queueOverride struct {
	persistence.Persistence
	queue *redisqueue.Queue
}

func (s *queueOverride) EnqueueTrigger(ctx context.Context, trigger *models.QueuedTrigger) error {
	return s.queue.EnqueueTrigger(ctx, trigger)
}

func (s *queueOverride) DueTriggers(ctx context.Context, now time.Time) ([]*models.QueuedTrigger, error) {
	return s.queue.DueTriggers(ctx, now)
}

func (s *queueOverride) MarkTriggerDone(ctx context.Context, id string) error {
	return s.queue.MarkTriggerDone(ctx, id)
}

func (s *queueOverride) MarkTriggerFailed(ctx context.Context, id string) error {
	return s.queue.MarkTriggerFailed(ctx, id)
}

func (s *queueOverride) HealthCheck(ctx context.Context) error {
	err := s.Persistence.HealthCheck(ctx)
	if err != nil {
		return err
	}

	return s.queue.HealthCheck(ctx)
}

func (s *queueOverride) Close(ctx context.Context) error {
	err := s.queue.Close(ctx)
	if err != nil {
		return err
	}

	return s.Persistence.Close(ctx)
}
