package web

import "github.com/leadrun/leadrun/pkg/models"

// StageEventRequest reports a lead moving into or out of a pipeline stage.
type StageEventRequest struct {
	LeadID          string `json:"lead_id"  validate:"required"`
	StageID         string `json:"stage_id" validate:"required"`
	PreviousStageID string `json:"previous_stage_id,omitempty"`
}

// MessageEventRequest reports an inbound message arriving for a lead.
type MessageEventRequest struct {
	LeadID    string `json:"lead_id" validate:"required"`
	ChannelID string `json:"channel_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// CreateFlowRequest creates or replaces a flow definition.
type CreateFlowRequest struct {
	ID       string             `json:"id,omitempty"`
	Name     string             `json:"name"    validate:"required,min=3"`
	Trigger  models.FlowTrigger `json:"trigger" validate:"required,oneof=message_received stage"`
	Nodes    []*models.Node     `json:"nodes"`
	Edges    []*models.Edge     `json:"edges"`
	IsActive bool               `json:"is_active"`
}

// CreateRuleRequest creates or replaces a stage automation rule.
type CreateRuleRequest struct {
	ID                string                `json:"id,omitempty"`
	StageID           string                `json:"stage_id"    validate:"required"`
	Trigger           models.RuleTrigger    `json:"trigger"     validate:"required,oneof=on_enter on_exit after_time"`
	TriggerDelayHours float64               `json:"trigger_delay_hours,omitempty" validate:"gte=0"`
	ActionType        models.RuleActionType `json:"action_type" validate:"required"`
	ActionConfig      map[string]any        `json:"action_config,omitempty"`
	Conditions        []models.Condition    `json:"conditions,omitempty"`
	IsActive          bool                  `json:"is_active"`
	Position          int                   `json:"position"`
}
