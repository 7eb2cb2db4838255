// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/leadrun/leadrun/pkg/actions/condition"
	"github.com/leadrun/leadrun/pkg/actions/movestage"
	"github.com/leadrun/leadrun/pkg/actions/sendmessage"
	"github.com/leadrun/leadrun/pkg/actions/tag"
	"github.com/leadrun/leadrun/pkg/actions/wait"
	"github.com/leadrun/leadrun/pkg/actions/webhook"
	"github.com/leadrun/leadrun/pkg/gateways"
	"github.com/leadrun/leadrun/pkg/registry"
)

// NewRegistry builds the node handler registry with every native action
// wired to its collaborators.
func NewRegistry(logger *slog.Logger, leads gateways.LeadStore, messaging gateways.MessagingGateway) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(sendmessage.NewHandler(messaging, logger))
	reg.Register(condition.NewHandler())
	reg.Register(wait.NewHandler())
	reg.Register(tag.NewHandler(leads, logger))
	reg.Register(movestage.NewHandler(leads, logger))
	reg.Register(webhook.NewHandler(logger))

	return reg
}
