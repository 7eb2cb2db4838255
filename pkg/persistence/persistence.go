// Package persistence provides the data storage abstraction for flows,
// automation rules, queued triggers and the execution log.
package persistence

import (
	"context"
	"time"

	"github.com/leadrun/leadrun/pkg/execlog"
	"github.com/leadrun/leadrun/pkg/models"
)

// FlowRepository stores flow definitions.
type FlowRepository interface {
	Flows(ctx context.Context) ([]*models.Flow, error)
	FlowByID(ctx context.Context, id string) (*models.Flow, error)

	// FlowsByTrigger returns the active flows bound to the given trigger.
	FlowsByTrigger(ctx context.Context, trigger models.FlowTrigger) ([]*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error

	// IncrementFlowExecutions atomically increments the executions count at
	// the store layer; no read-then-write.
	IncrementFlowExecutions(ctx context.Context, id string) error
}

// RuleRepository stores stage-level automation rules.
type RuleRepository interface {
	RuleByID(ctx context.Context, id string) (*models.AutomationRule, error)

	// RulesByStage returns the active rules for a stage and trigger kind,
	// ordered by position.
	RulesByStage(ctx context.Context, stageID string, trigger models.RuleTrigger) ([]*models.AutomationRule, error)
	SaveRule(ctx context.Context, rule *models.AutomationRule) error
}

// TriggerQueue is the durable delayed-trigger store. It is the only
// crash-surviving execution state in the system.
type TriggerQueue interface {
	EnqueueTrigger(ctx context.Context, trigger *models.QueuedTrigger) error
	DueTriggers(ctx context.Context, now time.Time) ([]*models.QueuedTrigger, error)
	MarkTriggerDone(ctx context.Context, id string) error
	MarkTriggerFailed(ctx context.Context, id string) error
}

// Persistence aggregates every repository plus the execution log sink.
type Persistence interface {
	FlowRepository
	RuleRepository
	TriggerQueue
	execlog.Sink

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
