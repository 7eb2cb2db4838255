// Package actions defines the handler contract for flow nodes. One handler
// exists per node type; each performs a side effect (or a pure computation
// for branching nodes) and returns a structured outcome.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadrun/leadrun/pkg/models"
)

// Outcome is the structured result of one node execution.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// Branch carries the boolean result of a condition node and is nil for
	// every other node type.
	Branch *bool `json:"branch,omitempty"`

	// StageMove is set by the move_stage handler so the caller can route
	// chained stage automations with a bounded hop counter.
	StageMove *models.StageChange `json:"stage_move,omitempty"`
}

// RunContext identifies the engine run a node executes within.
type RunContext struct {
	ExecutionID string    `json:"execution_id"`
	FlowID      string    `json:"flow_id"`
	StartedAt   time.Time `json:"started_at"`
}

// Handler executes one node type against a lead.
type Handler interface {
	Type() models.NodeType
	Execute(ctx context.Context, run RunContext, node *models.Node, lead *models.Lead) (Outcome, error)
}

// Failure taxonomy. Configuration errors are fatal to the node and never
// retried; transport errors are fatal to the current run but independent per
// automation.
var (
	ErrConfiguration = errors.New("invalid node configuration")
	ErrTransport     = errors.New("transport failure")
)

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// InvalidDataError converts a malformed node payload into a configuration
// error, or returns nil when the payload decoded cleanly.
func InvalidDataError(data models.NodeData) error {
	if invalid, ok := data.(models.InvalidData); ok {
		return fmt.Errorf("%s: %w", invalid.Error(), ErrConfiguration)
	}

	return nil
}
