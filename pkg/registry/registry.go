// Package registry maps node types to their action handlers and payload
// schemas. The engine dispatches through it; validation tooling uses the
// schemas to report malformed node data without rejecting stored flows.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/models"
)

// Registry holds one handler per node type.
type Registry struct {
	logger   *slog.Logger
	handlers map[models.NodeType]actions.Handler
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		handlers: make(map[models.NodeType]actions.Handler),
	}
}

// Register adds a handler for its node type, replacing any previous one.
func (r *Registry) Register(handler actions.Handler) {
	r.handlers[handler.Type()] = handler
}

// HandlerFor returns the handler for a node type.
func (r *Registry) HandlerFor(nodeType models.NodeType) (actions.Handler, error) {
	handler, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type %q not registered", nodeType)
	}

	return handler, nil
}

// Types returns the registered node types.
func (r *Registry) Types() []models.NodeType {
	types := make([]models.NodeType, 0, len(r.handlers))
	for nodeType := range r.handlers {
		types = append(types, nodeType)
	}

	return types
}
