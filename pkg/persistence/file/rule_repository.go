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

const rulesDir = "rules"

// RuleByID returns one automation rule.
func (p *Persistence) RuleByID(_ context.Context, id string) (*models.AutomationRule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var rule models.AutomationRule

	err := p.read(rulesDir, id, &rule)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRuleError("RuleByID", id, persistence.ErrRuleNotFound)
		}

		return nil, persistence.NewRuleError("RuleByID", id, err)
	}

	return &rule, nil
}

// RulesByStage returns the active rules for a stage and trigger kind,
// ordered by position.
func (p *Persistence) RulesByStage(_ context.Context, stageID string, trigger models.RuleTrigger) ([]*models.AutomationRule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rules := make([]*models.AutomationRule, 0)

	err := p.readEach(rulesDir, func(data []byte) error {
		var rule models.AutomationRule

		err := json.Unmarshal(data, &rule)
		if err != nil {
			return fmt.Errorf("failed to decode rule: %w", err)
		}

		if rule.IsActive && rule.StageID == stageID && rule.Trigger == trigger {
			rules = append(rules, &rule)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Position < rules[j].Position
	})

	return rules, nil
}

// SaveRule writes a rule to disk.
func (p *Persistence) SaveRule(_ context.Context, rule *models.AutomationRule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	rule.UpdatedAt = time.Now().UTC()

	err := p.write(rulesDir, rule.ID, rule)
	if err != nil {
		return persistence.NewRuleError("SaveRule", rule.ID, err)
	}

	return nil
}
