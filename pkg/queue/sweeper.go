// Package queue promotes due delayed triggers into rule runs. The sweep
// logic lives here; its cadence belongs to the caller (a cron schedule or a
// ticker).
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
)

const defaultInterval = time.Minute

// RuleRunner re-runs the same condition/action path the trigger router uses
// for inline rules.
type RuleRunner interface {
	RunRule(ctx context.Context, rule *models.AutomationRule, leadID string, hop int) error
}

// Stats summarizes one sweep.
type Stats struct {
	Promoted int `json:"promoted"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
}

// Store is the durable trigger queue plus the rule lookup the sweep needs.
type Store interface {
	persistence.TriggerQueue
	RuleByID(ctx context.Context, id string) (*models.AutomationRule, error)
}

// Sweeper drains due queued triggers. Failed entries stay failed; retry is a
// caller decision.
type Sweeper struct {
	store    Store
	runner   RuleRunner
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// Option configures the sweeper.
type Option func(*Sweeper)

// WithInterval overrides the Run polling interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a sweeper.
func NewSweeper(store Store, runner RuleRunner, logger *slog.Logger, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		store:    store,
		runner:   runner,
		logger:   logger.With("module", "trigger_sweeper"),
		interval: defaultInterval,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	return sweeper
}

// Sweep promotes every pending trigger due at the given time. Each entry is
// independent: one failure never blocks the rest of the batch.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats

	due, err := s.store.DueTriggers(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("failed to load due triggers: %w", err)
	}

	for _, queued := range due {
		stats.Promoted++

		err := s.promote(ctx, queued)
		if err != nil {
			stats.Failed++

			s.logger.ErrorContext(ctx, "Queued trigger failed",
				"trigger_id", queued.ID,
				"rule_id", queued.AutomationID,
				"error", err,
			)

			markErr := s.store.MarkTriggerFailed(ctx, queued.ID)
			if markErr != nil {
				s.logger.ErrorContext(ctx, "Failed to mark trigger failed", "trigger_id", queued.ID, "error", markErr)
			}

			continue
		}

		stats.Done++

		err = s.store.MarkTriggerDone(ctx, queued.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to mark trigger done", "trigger_id", queued.ID, "error", err)
		}
	}

	if stats.Promoted > 0 {
		s.logger.InfoContext(ctx, "Sweep finished",
			"promoted", stats.Promoted,
			"done", stats.Done,
			"failed", stats.Failed,
		)
	}

	return stats, nil
}

// promote re-resolves the rule and re-runs the inline condition/action path.
func (s *Sweeper) promote(ctx context.Context, queued *models.QueuedTrigger) error {
	rule, err := s.store.RuleByID(ctx, queued.AutomationID)
	if err != nil {
		return fmt.Errorf("failed to resolve rule %s: %w", queued.AutomationID, err)
	}

	if !rule.IsActive {
		return fmt.Errorf("rule %s is no longer active", rule.ID)
	}

	return s.runner.RunRule(ctx, rule, queued.LeadID, 0)
}

// Run polls the queue until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Starting trigger sweeper", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Trigger sweeper stopped")

			return ctx.Err()
		case <-ticker.C:
			_, err := s.Sweep(ctx, s.now())
			if err != nil {
				s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
			}
		}
	}
}
