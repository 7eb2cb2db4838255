package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
)

// RuleRepository handles automation-rule database operations.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRuleRepository creates a new automation rule repository.
func NewRuleRepository(db *sql.DB, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

const ruleColumns = `
	id
  , stage_id
  , trigger
  , trigger_delay_hours
  , conditions
  , action_type
  , action_config
  , position
  , is_active
  , created_at
  , updated_at
`

// GetByID returns an automation rule by its ID.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = $1`

	rule, err := r.scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRuleError("RuleByID", id, persistence.ErrRuleNotFound)
		}

		return nil, persistence.NewRuleError("RuleByID", id, err)
	}

	return rule, nil
}

// GetByStage returns active rules for a stage and trigger, ordered by
// position.
func (r *RuleRepository) GetByStage(ctx context.Context, stageID string, trigger models.RuleTrigger) ([]*models.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE stage_id = $1 AND trigger = $2 AND is_active = true
		ORDER BY position ASC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, stageID, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("failed to query rules by stage: %w", err)
	}

	defer func(ctx context.Context, r *RuleRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	rules := make([]*models.AutomationRule, 0)

	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// Save inserts or updates an automation rule.
func (r *RuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	now := time.Now().UTC()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return persistence.NewRuleError("SaveRule", rule.ID, fmt.Errorf("failed to marshal conditions: %w", err))
	}

	configJSON, err := json.Marshal(rule.ActionConfig)
	if err != nil {
		return persistence.NewRuleError("SaveRule", rule.ID, fmt.Errorf("failed to marshal action config: %w", err))
	}

	query := `
		INSERT INTO automation_rules
			(id, stage_id, trigger, trigger_delay_hours, conditions, action_type, action_config, position, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			stage_id = EXCLUDED.stage_id,
			trigger = EXCLUDED.trigger,
			trigger_delay_hours = EXCLUDED.trigger_delay_hours,
			conditions = EXCLUDED.conditions,
			action_type = EXCLUDED.action_type,
			action_config = EXCLUDED.action_config,
			position = EXCLUDED.position,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.StageID,
		string(rule.Trigger),
		rule.TriggerDelayHours,
		conditionsJSON,
		string(rule.ActionType),
		configJSON,
		rule.Position,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRuleError("SaveRule", rule.ID, err)
	}

	return nil
}

func (r *RuleRepository) scanRule(row rowScanner) (*models.AutomationRule, error) {
	var (
		rule           models.AutomationRule
		trigger        string
		actionType     string
		conditionsJSON []byte
		configJSON     []byte
	)

	err := row.Scan(
		&rule.ID,
		&rule.StageID,
		&trigger,
		&rule.TriggerDelayHours,
		&conditionsJSON,
		&actionType,
		&configJSON,
		&rule.Position,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Trigger = models.RuleTrigger(trigger)
	rule.ActionType = models.RuleActionType(actionType)

	err = json.Unmarshal(conditionsJSON, &rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	err = json.Unmarshal(configJSON, &rule.ActionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal action config: %w", err)
	}

	return &rule, nil
}
