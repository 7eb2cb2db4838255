// Package sendmessage implements the outbound message node.
package sendmessage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/gateways"
	"github.com/leadrun/leadrun/pkg/models"
)

// Handler resolves the lead's outbound address and delegates delivery to the
// messaging gateway. Delivery is best-effort; no receipt is awaited.
type Handler struct {
	gateway gateways.MessagingGateway
	logger  *slog.Logger
}

// NewHandler creates a send_message handler.
func NewHandler(gateway gateways.MessagingGateway, logger *slog.Logger) *Handler {
	return &Handler{
		gateway: gateway,
		logger:  logger.With("module", "send_message_action"),
	}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeSendMessage
}

func (h *Handler) Execute(ctx context.Context, _ actions.RunContext, node *models.Node, lead *models.Lead) (actions.Outcome, error) {
	if err := actions.InvalidDataError(node.Data); err != nil {
		return actions.Outcome{}, err
	}

	data, ok := node.Data.(models.SendMessageData)
	if !ok {
		return actions.Outcome{}, fmt.Errorf("node %s carries no send_message data: %w", node.ID, actions.ErrConfiguration)
	}

	if strings.TrimSpace(data.Text) == "" {
		return actions.Outcome{}, fmt.Errorf("missing message text: %w", actions.ErrConfiguration)
	}

	if lead.ChannelID == "" {
		return actions.Outcome{}, fmt.Errorf("lead %s has no outbound channel configured: %w", lead.ID, actions.ErrConfiguration)
	}

	address := resolveAddress(lead)
	if address == "" {
		return actions.Outcome{}, fmt.Errorf("lead %s has no outbound address: %w", lead.ID, actions.ErrConfiguration)
	}

	text := renderText(data.Text, lead)

	err := h.gateway.SendText(ctx, lead.ChannelID, address, text)
	if err != nil {
		return actions.Outcome{}, fmt.Errorf("failed to send message to %s: %v: %w", address, err, actions.ErrTransport)
	}

	h.logger.InfoContext(ctx, "Message sent", "lead_id", lead.ID, "channel_id", lead.ChannelID)

	return actions.Outcome{
		Success: true,
		Message: "message sent to " + address,
	}, nil
}

// resolveAddress prefers the channel-native identifier and falls back to a
// normalized phone number.
func resolveAddress(lead *models.Lead) string {
	if lead.MessengerID != "" {
		return lead.MessengerID
	}

	return normalizePhone(lead.Phone)
}

// normalizePhone strips everything but digits, keeping one leading plus.
func normalizePhone(phone string) string {
	var b strings.Builder

	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}

	normalized := b.String()
	if normalized == "" || normalized == "+" {
		return ""
	}

	return normalized
}

// renderText substitutes the supported lead placeholders in the message text.
func renderText(text string, lead *models.Lead) string {
	return strings.NewReplacer(
		"{{name}}", lead.Name,
		"{{phone}}", lead.Phone,
	).Replace(text)
}
