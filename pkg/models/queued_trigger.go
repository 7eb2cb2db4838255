package models

import "time"

// TriggerStatus is the lifecycle state of a queued trigger.
type TriggerStatus string

const (
	TriggerStatusPending TriggerStatus = "pending"
	TriggerStatusDone    TriggerStatus = "done"
	TriggerStatusFailed  TriggerStatus = "failed"
)

// QueuedTrigger is a durable record of "run this rule against this lead at
// time T". Entries survive process restarts and are promoted by the sweep.
// Failed entries are never re-queued automatically; retry is a caller
// decision.
type QueuedTrigger struct {
	ID           string        `json:"id"`
	AutomationID string        `json:"automation_id" validate:"required"`
	LeadID       string        `json:"lead_id"       validate:"required"`
	ExecuteAt    time.Time     `json:"execute_at"`
	Status       TriggerStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Due reports whether the trigger is ready to run at the given time.
func (q *QueuedTrigger) Due(now time.Time) bool {
	return q.Status == TriggerStatusPending && !q.ExecuteAt.After(now)
}
