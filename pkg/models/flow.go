// Package models defines the core domain models for pipeline automation flows.
package models

import "time"

// FlowTrigger represents the external event class a flow is bound to.
type FlowTrigger string

const (
	// FlowTriggerMessageReceived runs the flow when an inbound message arrives for a lead.
	FlowTriggerMessageReceived FlowTrigger = "message_received"
	// FlowTriggerStage runs the flow when a stage-level rule dispatches it (run_bot).
	FlowTriggerStage FlowTrigger = "stage"
)

// Flow represents a user-authored directed graph of typed action nodes.
// A flow is read-only during a single execution; live editing mid-run is not supported.
type Flow struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"              validate:"required,min=3"`
	Trigger         FlowTrigger `json:"trigger"`
	Nodes           []*Node     `json:"nodes"`
	Edges           []*Edge     `json:"edges"`
	IsActive        bool        `json:"is_active"`
	ExecutionsCount int         `json:"executions_count"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Edge is a directed connection between two nodes. A label of "true"/"false"
// disambiguates the branches emitted by a condition node.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Label  string `json:"label,omitempty"`
}

// EntryNode resolves the flow's entry point: the node that is the target of no
// edge. A fully cyclic graph falls back to the first node in declaration order.
// An empty flow has no entry.
func (f *Flow) EntryNode() *Node {
	if len(f.Nodes) == 0 {
		return nil
	}

	targets := make(map[string]bool, len(f.Edges))
	for _, edge := range f.Edges {
		targets[edge.Target] = true
	}

	for _, node := range f.Nodes {
		if !targets[node.ID] {
			return node
		}
	}

	return f.Nodes[0]
}

// NodeByID returns the node with the given ID, or nil.
func (f *Flow) NodeByID(id string) *Node {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns the edges whose source is the given node, in
// declaration order.
func (f *Flow) OutgoingEdges(nodeID string) []*Edge {
	edges := make([]*Edge, 0, 2)

	for _, edge := range f.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}
