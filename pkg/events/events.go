// Package events defines the domain events that trigger and report
// automation runs.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every leadrun domain event.
const Topic = "leadrun.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound domain events.
	LeadStageEnteredEvent    EventType = "lead.stage.entered"
	LeadStageExitedEvent     EventType = "lead.stage.exited"
	LeadMessageReceivedEvent EventType = "lead.message.received"

	// Automation lifecycle events.
	AutomationRunFinishedEvent EventType = "automation.run.finished"
	AutomationRunFailedEvent   EventType = "automation.run.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	LeadID    string         `json:"lead_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps an event with an id and a timestamp.
func NewBaseEvent(eventType EventType, leadID string) BaseEvent {
	return BaseEvent{
		ID:        "event-" + uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		LeadID:    leadID,
	}
}

// LeadStageEntered fires right after a lead's stage transition is persisted.
type LeadStageEntered struct {
	BaseEvent

	StageID         string `json:"stage_id"`
	PreviousStageID string `json:"previous_stage_id,omitempty"`
}

func (e LeadStageEntered) GetType() EventType {
	return LeadStageEnteredEvent
}

// LeadStageExited fires for the stage a lead just left.
type LeadStageExited struct {
	BaseEvent

	StageID     string `json:"stage_id"`
	NextStageID string `json:"next_stage_id,omitempty"`
}

func (e LeadStageExited) GetType() EventType {
	return LeadStageExitedEvent
}

// LeadMessageReceived fires when an inbound message arrives for a lead.
type LeadMessageReceived struct {
	BaseEvent

	ChannelID string `json:"channel_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

func (e LeadMessageReceived) GetType() EventType {
	return LeadMessageReceivedEvent
}

// AutomationRunFinished reports a completed engine run.
type AutomationRunFinished struct {
	BaseEvent

	FlowID        string        `json:"flow_id"`
	ExecutionID   string        `json:"execution_id"`
	NodesExecuted int           `json:"nodes_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e AutomationRunFinished) GetType() EventType {
	return AutomationRunFinishedEvent
}

// AutomationRunFailed reports an engine run that aborted on a node failure.
type AutomationRunFailed struct {
	BaseEvent

	FlowID        string        `json:"flow_id"`
	ExecutionID   string        `json:"execution_id"`
	NodesExecuted int           `json:"nodes_executed"`
	Errors        []string      `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration"`
}

func (e AutomationRunFailed) GetType() EventType {
	return AutomationRunFailedEvent
}
