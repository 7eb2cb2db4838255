// Package redisqueue provides a Redis-backed trigger queue. Pending triggers
// live in a sorted set scored by their execute_at time, so the sweep reads
// due entries with a single ZRANGEBYSCORE.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"

	"github.com/google/uuid"
)

const (
	pendingKey  = "leadrun:triggers:pending"
	payloadKey  = "leadrun:triggers:payload"
	connTimeout = 5 * time.Second
)

// Queue implements the trigger queue on Redis.
type Queue struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewQueue connects to Redis using a redis:// URL and returns a trigger
// queue.
func NewQueue(ctx context.Context, logger *slog.Logger, redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis trigger queue", "addr", opts.Addr, "db", opts.DB)

	return &Queue{client: client, logger: logger.With("module", "redisqueue")}, nil
}

// EnqueueTrigger stores a delayed trigger for later promotion.
func (q *Queue) EnqueueTrigger(ctx context.Context, trigger *models.QueuedTrigger) error {
	if trigger.ID == "" {
		trigger.ID = "queued-" + uuid.New().String()
	}

	if trigger.Status == "" {
		trigger.Status = models.TriggerStatusPending
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger %s: %w", trigger.ID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, payloadKey, trigger.ID, payload)
	pipe.ZAdd(ctx, pendingKey, redis.Z{
		Score:  float64(trigger.ExecuteAt.Unix()),
		Member: trigger.ID,
	})

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to enqueue trigger %s: %w", trigger.ID, err)
	}

	return nil
}

// DueTriggers returns pending triggers whose execute_at has passed, oldest
// first.
func (q *Queue) DueTriggers(ctx context.Context, now time.Time) ([]*models.QueuedTrigger, error) {
	ids, err := q.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due triggers: %w", err)
	}

	triggers := make([]*models.QueuedTrigger, 0, len(ids))

	for _, id := range ids {
		payload, err := q.client.HGet(ctx, payloadKey, id).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Payload expired out from under the index; drop the
				// dangling entry.
				q.client.ZRem(ctx, pendingKey, id)

				continue
			}

			return nil, fmt.Errorf("failed to load trigger %s: %w", id, err)
		}

		var trigger models.QueuedTrigger

		err = json.Unmarshal([]byte(payload), &trigger)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger %s: %w", id, err)
		}

		triggers = append(triggers, &trigger)
	}

	return triggers, nil
}

// MarkTriggerDone marks a queued trigger as done.
func (q *Queue) MarkTriggerDone(ctx context.Context, id string) error {
	return q.settle(ctx, id, models.TriggerStatusDone)
}

// MarkTriggerFailed marks a queued trigger as failed. Failed entries stay in
// the payload hash for inspection but leave the pending index, so they are
// never promoted again.
func (q *Queue) MarkTriggerFailed(ctx context.Context, id string) error {
	return q.settle(ctx, id, models.TriggerStatusFailed)
}

func (q *Queue) settle(ctx context.Context, id string, status models.TriggerStatus) error {
	payload, err := q.client.HGet(ctx, payloadKey, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
		}

		return fmt.Errorf("failed to load trigger %s: %w", id, err)
	}

	var trigger models.QueuedTrigger

	err = json.Unmarshal([]byte(payload), &trigger)
	if err != nil {
		return fmt.Errorf("failed to unmarshal trigger %s: %w", id, err)
	}

	trigger.Status = status

	updated, err := json.Marshal(&trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger %s: %w", id, err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, pendingKey, id)
	pipe.HSet(ctx, payloadKey, id, updated)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update trigger %s: %w", id, err)
	}

	return nil
}

// HealthCheck verifies the Redis connection is healthy.
func (q *Queue) HealthCheck(ctx context.Context) error {
	err := q.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (q *Queue) Close(_ context.Context) error {
	err := q.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}

	return nil
}
