// Package tag implements the tag mutation node.
package tag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/gateways"
	"github.com/leadrun/leadrun/pkg/models"
)

// Handler adds or removes a tag on the lead. Adding an already-present tag
// is idempotent, not an error.
type Handler struct {
	leads  gateways.LeadStore
	logger *slog.Logger
}

// NewHandler creates a tag handler.
func NewHandler(leads gateways.LeadStore, logger *slog.Logger) *Handler {
	return &Handler{
		leads:  leads,
		logger: logger.With("module", "tag_action"),
	}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeTag
}

func (h *Handler) Execute(ctx context.Context, _ actions.RunContext, node *models.Node, lead *models.Lead) (actions.Outcome, error) {
	if err := actions.InvalidDataError(node.Data); err != nil {
		return actions.Outcome{}, err
	}

	data, ok := node.Data.(models.TagData)
	if !ok {
		return actions.Outcome{}, fmt.Errorf("node %s carries no tag data: %w", node.ID, actions.ErrConfiguration)
	}

	if data.TagID == "" {
		return actions.Outcome{}, fmt.Errorf("missing tag id: %w", actions.ErrConfiguration)
	}

	switch data.Action {
	case models.TagActionAdd:
		err := h.leads.AddTag(ctx, lead.ID, data.TagID)
		if err != nil {
			return actions.Outcome{}, fmt.Errorf("failed to add tag %s: %v: %w", data.TagID, err, actions.ErrTransport)
		}

		h.logger.InfoContext(ctx, "Tag added", "lead_id", lead.ID, "tag_id", data.TagID)

		return actions.Outcome{Success: true, Message: "tag " + data.TagID + " added"}, nil
	case models.TagActionRemove:
		err := h.leads.RemoveTag(ctx, lead.ID, data.TagID)
		if err != nil {
			return actions.Outcome{}, fmt.Errorf("failed to remove tag %s: %v: %w", data.TagID, err, actions.ErrTransport)
		}

		h.logger.InfoContext(ctx, "Tag removed", "lead_id", lead.ID, "tag_id", data.TagID)

		return actions.Outcome{Success: true, Message: "tag " + data.TagID + " removed"}, nil
	case "":
		return actions.Outcome{}, fmt.Errorf("missing tag action: %w", actions.ErrConfiguration)
	default:
		return actions.Outcome{}, fmt.Errorf("unknown tag action %q: %w", data.Action, actions.ErrConfiguration)
	}
}
