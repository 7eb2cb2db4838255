package flow

import (
	"fmt"
	"strings"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/registry"
)

// IssueSeverity grades validation findings. Nothing reported here prevents a
// flow from running; the engine's fallback rules keep authored flows
// runnable.
type IssueSeverity string

const (
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// Issue is one validation finding.
type Issue struct {
	NodeID   string        `json:"node_id,omitempty"`
	EdgeID   string        `json:"edge_id,omitempty"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// Report collects the findings for one flow.
type Report struct {
	FlowID string  `json:"flow_id"`
	Issues []Issue `json:"issues"`
}

// Valid reports whether the flow carries no error-grade findings.
func (r *Report) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}

	return true
}

// Validate inspects a flow for authoring problems the engine papers over at
// runtime: ambiguous unlabeled fan-out, condition nodes missing branch
// edges, dangling edge endpoints, unreachable nodes and malformed payloads.
func Validate(flow *models.Flow) (*Report, error) {
	report := &Report{FlowID: flow.ID, Issues: make([]Issue, 0)}

	nodeIDs := make(map[string]*models.Node, len(flow.Nodes))
	for _, node := range flow.Nodes {
		nodeIDs[node.ID] = node
	}

	for _, edge := range flow.Edges {
		if _, ok := nodeIDs[edge.Source]; !ok {
			report.Issues = append(report.Issues, Issue{
				EdgeID:   edge.ID,
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge source %q references no node", edge.Source),
			})
		}

		if _, ok := nodeIDs[edge.Target]; !ok {
			report.Issues = append(report.Issues, Issue{
				EdgeID:   edge.ID,
				Severity: SeverityError,
				Message:  fmt.Sprintf("edge target %q references no node", edge.Target),
			})
		}
	}

	for _, node := range flow.Nodes {
		report.Issues = append(report.Issues, nodeIssues(flow, node)...)

		violations, err := registry.ValidateNodeData(node)
		if err != nil {
			return nil, fmt.Errorf("failed to validate node %s: %w", node.ID, err)
		}

		for _, violation := range violations {
			report.Issues = append(report.Issues, Issue{
				NodeID:   node.ID,
				Severity: SeverityError,
				Message:  violation,
			})
		}
	}

	report.Issues = append(report.Issues, reachabilityIssues(flow)...)

	return report, nil
}

func nodeIssues(flow *models.Flow, node *models.Node) []Issue {
	issues := make([]Issue, 0)
	edges := flow.OutgoingEdges(node.ID)

	if node.Type == models.NodeTypeCondition {
		labels := make(map[string]bool, len(edges))
		for _, edge := range edges {
			labels[strings.ToLower(edge.Label)] = true
		}

		for _, branch := range []string{"true", "false"} {
			if !labels[branch] {
				issues = append(issues, Issue{
					NodeID:   node.ID,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("condition node has no %q edge; that branch terminates the run", branch),
				})
			}
		}

		return issues
	}

	unlabeled := 0

	for _, edge := range edges {
		if edge.Label == "" {
			unlabeled++
		}
	}

	// The engine follows the first edge encountered. Almost certainly an
	// authoring mistake, so surface it here instead of relying on edge
	// order silently.
	if unlabeled > 1 {
		issues = append(issues, Issue{
			NodeID:   node.ID,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d unlabeled outgoing edges; only the first is followed", unlabeled),
		})
	}

	if _, ok := node.Data.(models.InvalidData); ok {
		issues = append(issues, Issue{
			NodeID:   node.ID,
			Severity: SeverityError,
			Message:  "node data failed to decode; the node will fail with a configuration error",
		})
	}

	return issues
}

func reachabilityIssues(flow *models.Flow) []Issue {
	entry := flow.EntryNode()
	if entry == nil {
		return nil
	}

	reachable := make(map[string]bool, len(flow.Nodes))
	stack := []string{entry.ID}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if reachable[id] {
			continue
		}

		reachable[id] = true

		for _, edge := range flow.OutgoingEdges(id) {
			stack = append(stack, edge.Target)
		}
	}

	issues := make([]Issue, 0)

	for _, node := range flow.Nodes {
		if !reachable[node.ID] {
			issues = append(issues, Issue{
				NodeID:   node.ID,
				Severity: SeverityWarning,
				Message:  "node is unreachable from the entry node",
			})
		}
	}

	return issues
}
