// Package condition implements the branching node. It performs no side
// effect; the boolean outcome selects the labeled edge the engine follows.
package condition

import (
	"context"
	"fmt"
	"strings"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/conditions"
	"github.com/leadrun/leadrun/pkg/models"
)

type Handler struct{}

// NewHandler creates a condition handler.
func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeCondition
}

func (h *Handler) Execute(_ context.Context, _ actions.RunContext, node *models.Node, lead *models.Lead) (actions.Outcome, error) {
	if err := actions.InvalidDataError(node.Data); err != nil {
		return actions.Outcome{}, err
	}

	data, ok := node.Data.(models.ConditionData)
	if !ok {
		return actions.Outcome{}, fmt.Errorf("node %s carries no condition data: %w", node.ID, actions.ErrConfiguration)
	}

	if strings.TrimSpace(data.Field) == "" || data.Operator == "" || strings.TrimSpace(data.Value) == "" {
		return actions.Outcome{}, fmt.Errorf("condition requires field, operator and value: %w", actions.ErrConfiguration)
	}

	result := conditions.Evaluate(models.Condition{
		Field:    data.Field,
		Operator: data.Operator,
		Value:    data.Value,
	}, lead)

	return actions.Outcome{
		Success: true,
		Message: fmt.Sprintf("%s %s %q evaluated to %t", data.Field, data.Operator, data.Value, result),
		Branch:  &result,
	}, nil
}
