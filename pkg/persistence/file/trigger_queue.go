package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
)

const triggersDir = "triggers"

// EnqueueTrigger persists a pending queued trigger.
func (p *Persistence) EnqueueTrigger(_ context.Context, trigger *models.QueuedTrigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if trigger.Status == "" {
		trigger.Status = models.TriggerStatusPending
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	return p.write(triggersDir, trigger.ID, trigger)
}

// DueTriggers returns pending triggers whose execute_at has passed, oldest
// first.
func (p *Persistence) DueTriggers(_ context.Context, now time.Time) ([]*models.QueuedTrigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	due := make([]*models.QueuedTrigger, 0)

	err := p.readEach(triggersDir, func(data []byte) error {
		var trigger models.QueuedTrigger

		err := json.Unmarshal(data, &trigger)
		if err != nil {
			return fmt.Errorf("failed to decode queued trigger: %w", err)
		}

		if trigger.Due(now) {
			due = append(due, &trigger)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ExecuteAt.Before(due[j].ExecuteAt)
	})

	return due, nil
}

// MarkTriggerDone transitions a trigger to done.
func (p *Persistence) MarkTriggerDone(ctx context.Context, id string) error {
	return p.setTriggerStatus(id, models.TriggerStatusDone)
}

// MarkTriggerFailed transitions a trigger to failed.
func (p *Persistence) MarkTriggerFailed(ctx context.Context, id string) error {
	return p.setTriggerStatus(id, models.TriggerStatusFailed)
}

func (p *Persistence) setTriggerStatus(id string, status models.TriggerStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var trigger models.QueuedTrigger

	err := p.read(triggersDir, id, &trigger)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.ErrTriggerNotFound
		}

		return err
	}

	trigger.Status = status

	return p.write(triggersDir, id, &trigger)
}
