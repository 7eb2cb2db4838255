// Package movestage implements the stage transition node.
package movestage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/gateways"
	"github.com/leadrun/leadrun/pkg/models"
)

// Handler moves the lead to a new stage and appends a from/to history record
// attributed to the automation system. The resulting StageMove lets the
// trigger router run chained stage automations under a bounded hop counter.
type Handler struct {
	leads  gateways.LeadStore
	logger *slog.Logger
}

// NewHandler creates a move_stage handler.
func NewHandler(leads gateways.LeadStore, logger *slog.Logger) *Handler {
	return &Handler{
		leads:  leads,
		logger: logger.With("module", "move_stage_action"),
	}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeMoveStage
}

func (h *Handler) Execute(ctx context.Context, _ actions.RunContext, node *models.Node, lead *models.Lead) (actions.Outcome, error) {
	if err := actions.InvalidDataError(node.Data); err != nil {
		return actions.Outcome{}, err
	}

	data, ok := node.Data.(models.MoveStageData)
	if !ok {
		return actions.Outcome{}, fmt.Errorf("node %s carries no move_stage data: %w", node.ID, actions.ErrConfiguration)
	}

	if data.StageID == "" {
		return actions.Outcome{}, fmt.Errorf("missing target stage id: %w", actions.ErrConfiguration)
	}

	fromStageID := lead.StageID
	if fromStageID == data.StageID {
		return actions.Outcome{
			Success: true,
			Message: "lead already in stage " + data.StageID,
		}, nil
	}

	err := h.leads.SetStage(ctx, lead.ID, data.StageID)
	if err != nil {
		return actions.Outcome{}, fmt.Errorf("failed to move lead to stage %s: %v: %w", data.StageID, err, actions.ErrTransport)
	}

	change := models.StageChange{
		LeadID:      lead.ID,
		FromStageID: fromStageID,
		ToStageID:   data.StageID,
		AuthorID:    models.AutomationAuthorID,
		ChangedAt:   time.Now().UTC(),
	}

	err = h.leads.AppendStageHistory(ctx, change)
	if err != nil {
		return actions.Outcome{}, fmt.Errorf("failed to append stage history: %v: %w", err, actions.ErrTransport)
	}

	// Keep the in-run snapshot coherent so a following condition node sees
	// the new stage.
	lead.StageID = data.StageID

	h.logger.InfoContext(ctx, "Lead moved",
		"lead_id", lead.ID,
		"from_stage_id", fromStageID,
		"to_stage_id", data.StageID,
	)

	return actions.Outcome{
		Success:   true,
		Message:   fmt.Sprintf("lead moved from stage %s to %s", fromStageID, data.StageID),
		StageMove: &change,
	}, nil
}
