package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
)

// TriggerQueueRepository stores delayed rule triggers.
type TriggerQueueRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerQueueRepository creates a new trigger queue repository.
func NewTriggerQueueRepository(db *sql.DB, logger *slog.Logger) *TriggerQueueRepository {
	return &TriggerQueueRepository{db: db, logger: logger}
}

// Enqueue stores a delayed trigger for later promotion.
func (r *TriggerQueueRepository) Enqueue(ctx context.Context, trigger *models.QueuedTrigger) error {
	if trigger.ID == "" {
		trigger.ID = "queued-" + uuid.New().String()
	}

	if trigger.Status == "" {
		trigger.Status = models.TriggerStatusPending
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO queued_triggers (id, automation_id, lead_id, execute_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.AutomationID,
		trigger.LeadID,
		trigger.ExecuteAt,
		string(trigger.Status),
		trigger.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue trigger %s: %w", trigger.ID, err)
	}

	return nil
}

// Due returns pending triggers whose execute_at has passed, oldest first.
func (r *TriggerQueueRepository) Due(ctx context.Context, now time.Time) ([]*models.QueuedTrigger, error) {
	query := `
		SELECT
			id
		  , automation_id
		  , lead_id
		  , execute_at
		  , status
		  , created_at
		FROM queued_triggers
		WHERE status = $1 AND execute_at <= $2
		ORDER BY execute_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, string(models.TriggerStatusPending), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due triggers: %w", err)
	}

	defer func(ctx context.Context, r *TriggerQueueRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	triggers := make([]*models.QueuedTrigger, 0)

	for rows.Next() {
		var (
			trigger models.QueuedTrigger
			status  string
		)

		err := rows.Scan(
			&trigger.ID,
			&trigger.AutomationID,
			&trigger.LeadID,
			&trigger.ExecuteAt,
			&status,
			&trigger.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued trigger: %w", err)
		}

		trigger.Status = models.TriggerStatus(status)
		triggers = append(triggers, &trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating queued triggers: %w", err)
	}

	return triggers, nil
}

// SetStatus moves a queued trigger to a terminal status.
func (r *TriggerQueueRepository) SetStatus(ctx context.Context, id string, status models.TriggerStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE queued_triggers SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update trigger %s status: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update trigger %s status: %w", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
	}

	return nil
}
