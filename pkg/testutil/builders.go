// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/leadrun/leadrun/pkg/models"
)

// CreateTestNode creates a test node with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:   uuid.New().String(),
		Type: models.NodeTypeSendMessage,
		Data: models.SendMessageData{Text: "hello {{name}}"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithData sets the node type and payload together so the pair stays
// consistent.
func WithData(data models.NodeData) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = data.NodeType()
		n.Data = data
	}
}

// WithPosition sets the node canvas position.
func WithPosition(x, y int) func(*models.Node) {
	return func(n *models.Node) {
		n.PositionX = x
		n.PositionY = y
	}
}

// CreateTestFlow creates an active flow from the given nodes and edges.
func CreateTestFlow(nodes []*models.Node, edges []*models.Edge, overrides ...func(*models.Flow)) *models.Flow {
	flow := &models.Flow{
		ID:       "flow-" + uuid.New().String()[:8],
		Name:     "Test Flow",
		Trigger:  models.FlowTriggerMessageReceived,
		Nodes:    nodes,
		Edges:    edges,
		IsActive: true,
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// Chain connects the nodes linearly with unlabeled edges.
func Chain(nodes ...*models.Node) []*models.Edge {
	edges := make([]*models.Edge, 0, len(nodes))

	for i := 0; i+1 < len(nodes); i++ {
		edges = append(edges, &models.Edge{
			ID:     uuid.New().String(),
			Source: nodes[i].ID,
			Target: nodes[i+1].ID,
		})
	}

	return edges
}

// Branch connects a condition node to its true and false successors.
func Branch(source, onTrue, onFalse *models.Node) []*models.Edge {
	return []*models.Edge{
		{ID: uuid.New().String(), Source: source.ID, Target: onTrue.ID, Label: "true"},
		{ID: uuid.New().String(), Source: source.ID, Target: onFalse.ID, Label: "false"},
	}
}

// CreateTestLead creates a lead with default values that can be overridden.
func CreateTestLead(overrides ...func(*models.Lead)) *models.Lead {
	lead := &models.Lead{
		ID:      "lead-" + uuid.New().String()[:8],
		Name:    "Ada",
		Phone:   "+5511999990000",
		StageID: "stage-new",
	}

	for _, override := range overrides {
		override(lead)
	}

	return lead
}

// WithStage sets the lead's stage.
func WithStage(stageID string) func(*models.Lead) {
	return func(l *models.Lead) {
		l.StageID = stageID
	}
}

// WithTags sets the lead's tags.
func WithTags(tags ...models.Tag) func(*models.Lead) {
	return func(l *models.Lead) {
		l.Tags = tags
	}
}

// WithAttributes sets the lead's custom attributes.
func WithAttributes(attrs map[string]any) func(*models.Lead) {
	return func(l *models.Lead) {
		l.Attributes = attrs
	}
}
