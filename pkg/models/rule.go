package models

import "time"

// RuleTrigger represents when a stage-level automation rule fires.
type RuleTrigger string

const (
	RuleTriggerOnEnter   RuleTrigger = "on_enter"
	RuleTriggerOnExit    RuleTrigger = "on_exit"
	RuleTriggerAfterTime RuleTrigger = "after_time"
)

// RuleActionType is the narrower action set available to stage-level rules,
// as opposed to full flow nodes.
type RuleActionType string

const (
	RuleActionRunBot            RuleActionType = "run_bot"
	RuleActionNotifyResponsible RuleActionType = "notify_responsible"
	RuleActionChangeResponsible RuleActionType = "change_responsible"
	RuleActionAddTag            RuleActionType = "add_tag"
	RuleActionRemoveTag         RuleActionType = "remove_tag"
	RuleActionCreateTask        RuleActionType = "create_task"
)

// AutomationRule is a stage-scoped trigger+conditions+single-action
// construct, a simpler sibling of a full Flow. Rules on the same stage
// execute in Position order; after_time rules never run inline and always go
// through the delayed trigger queue.
type AutomationRule struct {
	ID                string         `json:"id"`
	StageID           string         `json:"stage_id"     validate:"required"`
	Trigger           RuleTrigger    `json:"trigger"      validate:"required"`
	TriggerDelayHours float64        `json:"trigger_delay_hours,omitempty"`
	ActionType        RuleActionType `json:"action_type"  validate:"required"`
	ActionConfig      map[string]any `json:"action_config,omitempty"`
	Conditions        []Condition    `json:"conditions,omitempty"`
	IsActive          bool           `json:"is_active"`
	Position          int            `json:"position"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ConfigString reads a string value from the rule's action config.
func (r *AutomationRule) ConfigString(key string) string {
	value, _ := r.ActionConfig[key].(string)

	return value
}

// Delay returns the after_time delay as a duration.
func (r *AutomationRule) Delay() time.Duration {
	return time.Duration(r.TriggerDelayHours * float64(time.Hour))
}
