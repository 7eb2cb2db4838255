// Package postgresql provides PostgreSQL persistence for flows, automation
// rules, queued triggers and the execution log.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	flowRepo    *FlowRepository
	ruleRepo    *RuleRepository
	triggerRepo *TriggerQueueRepository
	execLogRepo *ExecutionLogRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs schema
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:          database,
		logger:      logger,
		flowRepo:    NewFlowRepository(database, logger),
		ruleRepo:    NewRuleRepository(database, logger),
		triggerRepo: NewTriggerQueueRepository(database, logger),
		execLogRepo: NewExecutionLogRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Flows returns all flows from the database.
func (p *Persistence) Flows(ctx context.Context) ([]*models.Flow, error) {
	return p.flowRepo.GetAll(ctx)
}

// FlowByID returns a flow by its ID.
func (p *Persistence) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	return p.flowRepo.GetByID(ctx, id)
}

// FlowsByTrigger returns active flows registered for the given trigger.
func (p *Persistence) FlowsByTrigger(ctx context.Context, trigger models.FlowTrigger) ([]*models.Flow, error) {
	return p.flowRepo.GetByTrigger(ctx, trigger)
}

// SaveFlow saves a flow to the database.
func (p *Persistence) SaveFlow(ctx context.Context, flow *models.Flow) error {
	return p.flowRepo.Save(ctx, flow)
}

// IncrementFlowExecutions atomically bumps the executions counter of a flow.
func (p *Persistence) IncrementFlowExecutions(ctx context.Context, id string) error {
	return p.flowRepo.IncrementExecutions(ctx, id)
}

// RuleByID returns an automation rule by its ID.
func (p *Persistence) RuleByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	return p.ruleRepo.GetByID(ctx, id)
}

// RulesByStage returns active rules for a stage and trigger, ordered by
// position.
func (p *Persistence) RulesByStage(ctx context.Context, stageID string, trigger models.RuleTrigger) ([]*models.AutomationRule, error) {
	return p.ruleRepo.GetByStage(ctx, stageID, trigger)
}

// SaveRule saves an automation rule to the database.
func (p *Persistence) SaveRule(ctx context.Context, rule *models.AutomationRule) error {
	return p.ruleRepo.Save(ctx, rule)
}

// EnqueueTrigger stores a delayed trigger for later promotion.
func (p *Persistence) EnqueueTrigger(ctx context.Context, trigger *models.QueuedTrigger) error {
	return p.triggerRepo.Enqueue(ctx, trigger)
}

// DueTriggers returns pending triggers whose execute_at has passed.
func (p *Persistence) DueTriggers(ctx context.Context, now time.Time) ([]*models.QueuedTrigger, error) {
	return p.triggerRepo.Due(ctx, now)
}

// MarkTriggerDone marks a queued trigger as done.
func (p *Persistence) MarkTriggerDone(ctx context.Context, id string) error {
	return p.triggerRepo.SetStatus(ctx, id, models.TriggerStatusDone)
}

// MarkTriggerFailed marks a queued trigger as failed.
func (p *Persistence) MarkTriggerFailed(ctx context.Context, id string) error {
	return p.triggerRepo.SetStatus(ctx, id, models.TriggerStatusFailed)
}

// Append stores an execution log entry.
func (p *Persistence) Append(ctx context.Context, entry models.ExecutionLogEntry) error {
	return p.execLogRepo.Append(ctx, entry)
}

// EntriesByLead returns the execution log entries recorded for a lead.
func (p *Persistence) EntriesByLead(ctx context.Context, leadID string) ([]models.ExecutionLogEntry, error) {
	return p.execLogRepo.ByLead(ctx, leadID)
}

// EntriesByFlow returns the execution log entries recorded for a flow.
func (p *Persistence) EntriesByFlow(ctx context.Context, flowID string) ([]models.ExecutionLogEntry, error) {
	return p.execLogRepo.ByFlow(ctx, flowID)
}
