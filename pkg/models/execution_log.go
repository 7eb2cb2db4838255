package models

import "time"

// ExecutionStatus is the status of one node visit in the execution log.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// ExecutionLogEntry records one (node visit, status transition) pair. Entries
// are append-only and never mutated after write; a single node visit
// typically produces two entries, running then a terminal status.
type ExecutionLogEntry struct {
	ID        string          `json:"id"`
	FlowID    string          `json:"flow_id"` // flow id or automation rule id
	LeadID    string          `json:"lead_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Status    ExecutionStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
