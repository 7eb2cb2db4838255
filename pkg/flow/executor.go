// Package flow walks a flow graph node by node, dispatching each node
// through the action registry and recording every visit in the execution
// log.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/execlog"
	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/otelhelper"
	"github.com/leadrun/leadrun/pkg/registry"
)

// maxVisitsPerNode bounds total steps to nodes × this constant so authored
// cycles terminate instead of looping forever.
const maxVisitsPerNode = 4

// Counter increments a flow's executions count. Implementations must make
// the increment atomic at the data-store layer.
type Counter interface {
	IncrementFlowExecutions(ctx context.Context, flowID string) error
}

// Result is the outcome of one engine run.
type Result struct {
	ExecutionID   string               `json:"execution_id"`
	Success       bool                 `json:"success"`
	NodesExecuted int                  `json:"nodes_executed"`
	Errors        []string             `json:"errors,omitempty"`
	StageMoves    []models.StageChange `json:"stage_moves,omitempty"`
}

// Executor runs flows. Execution is sequential within one run; multiple runs
// may execute concurrently since the executor holds no per-run state.
type Executor struct {
	registry *registry.Registry
	execLog  execlog.Sink
	counter  Counter
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures the executor.
type Option func(*Executor)

// WithCounter wires the executions-count increment.
func WithCounter(counter Counter) Option {
	return func(e *Executor) {
		e.counter = counter
	}
}

// WithTracer enables span creation per run and per node.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// NewExecutor creates an executor dispatching through the given registry.
func NewExecutor(reg *registry.Registry, execLog execlog.Sink, logger *slog.Logger, opts ...Option) *Executor {
	executor := &Executor{
		registry: reg,
		execLog:  execLog,
		logger:   logger.With("module", "flow_executor"),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute walks the flow against the lead snapshot. It terminates at the
// first node with no matching outgoing edge, at the first handler failure,
// or when the cycle guard exhausts. The flow's executions count increments
// exactly once per run, independent of how it ended.
func (e *Executor) Execute(ctx context.Context, flow *models.Flow, lead *models.Lead) Result {
	result := Result{
		ExecutionID: newExecutionID(),
		Success:     true,
	}

	logger := e.logger.With(
		"flow_id", flow.ID,
		"lead_id", lead.ID,
		"execution_id", result.ExecutionID,
	)

	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "flow.execute",
			attribute.String(otelhelper.FlowIDKey, flow.ID),
			attribute.String(otelhelper.FlowNameKey, flow.Name),
			attribute.String(otelhelper.LeadIDKey, lead.ID),
			attribute.String(otelhelper.ExecutionIDKey, result.ExecutionID),
		)
		defer span.End()
	}

	// A zero-node flow is a no-op, but it still counts as a completed run.
	defer e.incrementExecutions(ctx, flow.ID, logger)

	if len(flow.Nodes) == 0 {
		logger.InfoContext(ctx, "Flow has no nodes to execute")

		return result
	}

	logger.InfoContext(ctx, "Starting flow execution")

	run := actions.RunContext{
		ExecutionID: result.ExecutionID,
		FlowID:      flow.ID,
		StartedAt:   time.Now().UTC(),
	}

	ceiling := len(flow.Nodes) * maxVisitsPerNode
	current := flow.EntryNode()

	for steps := 0; current != nil; steps++ {
		if steps >= ceiling {
			// Authored cycle: terminate instead of looping forever. Kept a
			// non-error so authored flows stay runnable.
			logger.WarnContext(ctx, "Step ceiling reached, stopping run", "steps", steps)
			e.appendLog(ctx, flow.ID, lead.ID, current.ID, models.ExecutionStatusSkipped,
				fmt.Sprintf("step ceiling of %d reached, execution stopped", ceiling), logger)

			break
		}

		outcome, err := e.executeNode(ctx, run, flow, current, lead, logger)
		result.NodesExecuted++

		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("node %s: %v", current.ID, err))

			logger.ErrorContext(ctx, "Node failed, aborting run", "node_id", current.ID, "error", err)

			break
		}

		if outcome.StageMove != nil {
			result.StageMoves = append(result.StageMoves, *outcome.StageMove)
		}

		current = e.nextNode(flow, current, outcome)
	}

	logger.InfoContext(ctx, "Flow execution finished",
		"success", result.Success,
		"nodes_executed", result.NodesExecuted,
	)

	return result
}

func (e *Executor) executeNode(
	ctx context.Context,
	run actions.RunContext,
	flow *models.Flow,
	node *models.Node,
	lead *models.Lead,
	logger *slog.Logger,
) (actions.Outcome, error) {
	if e.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "flow.node",
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		)
		defer span.End()
	}

	e.appendLog(ctx, flow.ID, lead.ID, node.ID, models.ExecutionStatusRunning, "", logger)

	handler, err := e.registry.HandlerFor(node.Type)
	if err != nil {
		e.failNode(ctx, flow, node, lead, err, logger)

		return actions.Outcome{}, err
	}

	outcome, err := handler.Execute(ctx, run, node, lead)
	if err != nil {
		e.failNode(ctx, flow, node, lead, err, logger)

		return actions.Outcome{}, err
	}

	e.appendLog(ctx, flow.ID, lead.ID, node.ID, models.ExecutionStatusSuccess, outcome.Message, logger)

	return outcome, nil
}

// failNode records the node failure on the execution log and on the current
// span. The span from ctx is non-recording when tracing is disabled.
func (e *Executor) failNode(
	ctx context.Context,
	flow *models.Flow,
	node *models.Node,
	lead *models.Lead,
	err error,
	logger *slog.Logger,
) {
	otelhelper.SetError(trace.SpanFromContext(ctx), err,
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)

	e.appendLog(ctx, flow.ID, lead.ID, node.ID, models.ExecutionStatusError, err.Error(), logger)
}

// nextNode selects the next node from the current node's outgoing edges. A
// condition node follows the edge whose label matches its boolean outcome;
// any other node follows its single outgoing edge. Multiple unlabeled edges
// fall back to the first encountered; the validator flags that authoring
// ambiguity.
func (e *Executor) nextNode(flow *models.Flow, node *models.Node, outcome actions.Outcome) *models.Node {
	edges := flow.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return nil
	}

	if node.Type == models.NodeTypeCondition && outcome.Branch != nil {
		label := "false"
		if *outcome.Branch {
			label = "true"
		}

		for _, edge := range edges {
			if strings.EqualFold(edge.Label, label) {
				return flow.NodeByID(edge.Target)
			}
		}

		// No edge for this branch: the run terminates here.
		return nil
	}

	return flow.NodeByID(edges[0].Target)
}

func (e *Executor) incrementExecutions(ctx context.Context, flowID string, logger *slog.Logger) {
	if e.counter == nil {
		return
	}

	err := e.counter.IncrementFlowExecutions(ctx, flowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to increment flow executions count", "error", err)
	}
}

func (e *Executor) appendLog(
	ctx context.Context,
	flowID, leadID, nodeID string,
	status models.ExecutionStatus,
	message string,
	logger *slog.Logger,
) {
	entry := models.ExecutionLogEntry{
		ID:        execlog.NewEntryID(),
		FlowID:    flowID,
		LeadID:    leadID,
		NodeID:    nodeID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	err := e.execLog.Append(ctx, entry)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to append execution log entry", "error", err)
	}
}

func newExecutionID() string {
	return "exec-" + uuid.New().String()[:8]
}
