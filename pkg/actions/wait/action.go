// Package wait implements the delay node. During inline execution the node
// is a documented no-op: delays are expressed only through the delayed
// trigger queue, never by blocking the engine.
package wait

import (
	"context"
	"fmt"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/models"
)

type Handler struct{}

// NewHandler creates a wait handler.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeWait
}

func (h *Handler) Execute(_ context.Context, _ actions.RunContext, node *models.Node, _ *models.Lead) (actions.Outcome, error) {
	message := "wait node has no effect during inline execution"

	if data, ok := node.Data.(models.WaitData); ok && data.DelayHours > 0 {
		message = fmt.Sprintf("wait of %gh has no effect during inline execution", data.DelayHours)
	}

	return actions.Outcome{Success: true, Message: message}, nil
}
