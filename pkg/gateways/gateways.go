// Package gateways defines the service boundaries the automation core drives:
// the lead store, the messaging gateway and the notification/task
// collaborators. All of them live outside the core; implementations are
// provided by the surrounding CRM.
package gateways

import (
	"context"
	"errors"
	"time"

	"github.com/leadrun/leadrun/pkg/models"
)

// ErrLeadNotFound indicates a lead was not found by the given identifier.
var ErrLeadNotFound = errors.New("lead not found")

// LeadStore reads and mutates lead records. Reads must be point-in-time
// consistent so condition evaluation sees a coherent snapshot. Writes are
// last-writer-wins; the core provides no optimistic concurrency control.
type LeadStore interface {
	LeadByID(ctx context.Context, id string) (*models.Lead, error)
	SetStage(ctx context.Context, leadID, stageID string) error
	AppendStageHistory(ctx context.Context, change models.StageChange) error

	// AddTag is idempotent: adding an already-present tag is not an error
	// and leaves the tag set unchanged.
	AddTag(ctx context.Context, leadID, tagID string) error
	RemoveTag(ctx context.Context, leadID, tagID string) error

	SetResponsible(ctx context.Context, leadID, userID string) error
}

// MessagingGateway delivers outbound text messages. Best-effort; the engine
// awaits no delivery receipt.
type MessagingGateway interface {
	SendText(ctx context.Context, channelID, address, text string) error
}

// NotificationService notifies the user responsible for a lead.
type NotificationService interface {
	NotifyResponsible(ctx context.Context, leadID, message string) error
}

// TaskService creates follow-up tasks against a lead.
type TaskService interface {
	CreateTask(ctx context.Context, leadID, text string, dueAt time.Time) error
}
