package cmd

import (
	"context"
	"log/slog"

	"github.com/leadrun/leadrun/pkg/gateways"
	"github.com/leadrun/leadrun/pkg/gateways/memory"
	"github.com/leadrun/leadrun/pkg/gateways/postgres"
)

// NewLeadStore creates the lead store from a CRM database URL. An empty URL
// selects the in-memory store, which is the development and test default.
func NewLeadStore(ctx context.Context, logger *slog.Logger, databaseURL string) (gateways.LeadStore, error) {
	if databaseURL == "" {
		logger.InfoContext(ctx, "Using in-memory lead store")

		return memory.NewLeadStore(), nil
	}

	return postgres.NewLeadStore(ctx, logger, databaseURL)
}
