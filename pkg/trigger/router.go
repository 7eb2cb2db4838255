// Package trigger routes domain events to runnable flows and stage rules.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadrun/leadrun/pkg/conditions"
	"github.com/leadrun/leadrun/pkg/eventbus"
	"github.com/leadrun/leadrun/pkg/events"
	"github.com/leadrun/leadrun/pkg/execlog"
	"github.com/leadrun/leadrun/pkg/flow"
	"github.com/leadrun/leadrun/pkg/gateways"
	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/otelhelper"
	"github.com/leadrun/leadrun/pkg/persistence"
)

// MaxStageHops bounds chained stage automation: a run_bot flow that moves a
// lead re-enters the router at hop+1 and is dropped past this bound, so two
// stages whose automations move leads at each other cannot trigger forever.
const MaxStageHops = 5

// Router maps domain events to flows and automation rules, applying
// rule-level conditions before dispatching.
type Router struct {
	persistence   persistence.Persistence
	leads         gateways.LeadStore
	notifications gateways.NotificationService
	tasks         gateways.TaskService
	executor      *flow.Executor
	execLog       execlog.Sink
	bus           eventbus.EventPublisher
	tracer        trace.Tracer
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures the router.
type Option func(*Router)

// WithEventBus publishes run lifecycle events to the bus.
func WithEventBus(bus eventbus.EventPublisher) Option {
	return func(r *Router) {
		r.bus = bus
	}
}

// WithTracer enables span creation per routed event.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = tracer
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// NewRouter creates a trigger router.
func NewRouter(
	store persistence.Persistence,
	leads gateways.LeadStore,
	notifications gateways.NotificationService,
	tasks gateways.TaskService,
	executor *flow.Executor,
	execLog execlog.Sink,
	logger *slog.Logger,
	opts ...Option,
) *Router {
	router := &Router{
		persistence:   store,
		leads:         leads,
		notifications: notifications,
		tasks:         tasks,
		executor:      executor,
		execLog:       execLog,
		logger:        logger.With("module", "trigger_router"),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(router)
	}

	return router
}

// HandleStageEntered runs the stage's on_enter rules and enqueues its
// after_time rules. Called synchronously right after the stage transition is
// persisted.
func (r *Router) HandleStageEntered(ctx context.Context, leadID, stageID string) error {
	return r.handleStageEvent(ctx, leadID, stageID, models.RuleTriggerOnEnter, 0)
}

// HandleStageExited runs the stage's on_exit rules for the stage the lead
// just left.
func (r *Router) HandleStageExited(ctx context.Context, leadID, stageID string) error {
	return r.handleStageEvent(ctx, leadID, stageID, models.RuleTriggerOnExit, 0)
}

// HandleMessageReceived runs every active flow bound to the message trigger
// through the full execution engine.
func (r *Router) HandleMessageReceived(ctx context.Context, leadID string) error {
	logger := r.logger.With("lead_id", leadID, "trigger", "message_received")

	if r.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "trigger.message_received",
			attribute.String(otelhelper.LeadIDKey, leadID),
			attribute.String(otelhelper.TriggerKindKey, "message_received"),
		)
		defer span.End()
	}

	flows, err := r.persistence.FlowsByTrigger(ctx, models.FlowTriggerMessageReceived)
	if err != nil {
		return fmt.Errorf("failed to load message flows: %w", err)
	}

	for _, definition := range flows {
		err := r.runFlow(ctx, definition, leadID, 0)
		if err != nil {
			// Each flow is independent; the batch continues.
			logger.ErrorContext(ctx, "Flow run failed", "flow_id", definition.ID, "error", err)
		}
	}

	return nil
}

func (r *Router) handleStageEvent(ctx context.Context, leadID, stageID string, kind models.RuleTrigger, hop int) error {
	logger := r.logger.With(
		"lead_id", leadID,
		"stage_id", stageID,
		"trigger", string(kind),
		"hop", hop,
	)

	if r.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "trigger.stage",
			attribute.String(otelhelper.LeadIDKey, leadID),
			attribute.String(otelhelper.StageIDKey, stageID),
			attribute.String(otelhelper.TriggerKindKey, string(kind)),
		)
		defer span.End()
	}

	rules, err := r.persistence.RulesByStage(ctx, stageID, kind)
	if err != nil {
		return fmt.Errorf("failed to load %s rules for stage %s: %w", kind, stageID, err)
	}

	for _, rule := range rules {
		err := r.RunRule(ctx, rule, leadID, hop)
		if err != nil {
			// Rule failures never abort the remaining rules in the batch.
			logger.ErrorContext(ctx, "Rule dispatch failed", "rule_id", rule.ID, "error", err)
		}
	}

	if kind == models.RuleTriggerOnEnter {
		err := r.enqueueDelayedRules(ctx, leadID, stageID, logger)
		if err != nil {
			return err
		}
	}

	return nil
}

// enqueueDelayedRules creates one pending queued trigger per active
// after_time rule on the stage, regardless of whether any inline rule ran.
func (r *Router) enqueueDelayedRules(ctx context.Context, leadID, stageID string, logger *slog.Logger) error {
	delayed, err := r.persistence.RulesByStage(ctx, stageID, models.RuleTriggerAfterTime)
	if err != nil {
		return fmt.Errorf("failed to load after_time rules for stage %s: %w", stageID, err)
	}

	for _, rule := range delayed {
		queued := &models.QueuedTrigger{
			ID:           "queued-" + uuid.New().String(),
			AutomationID: rule.ID,
			LeadID:       leadID,
			ExecuteAt:    r.now().UTC().Add(rule.Delay()),
			Status:       models.TriggerStatusPending,
			CreatedAt:    r.now().UTC(),
		}

		err := r.persistence.EnqueueTrigger(ctx, queued)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to enqueue delayed trigger", "rule_id", rule.ID, "error", err)

			continue
		}

		logger.InfoContext(ctx, "Delayed trigger enqueued",
			"rule_id", rule.ID,
			"execute_at", queued.ExecuteAt,
		)
	}

	return nil
}

// RunRule evaluates a rule's conditions against a freshly loaded lead
// snapshot and dispatches its action. The sweeper re-runs queued after_time
// rules through this same path.
func (r *Router) RunRule(ctx context.Context, rule *models.AutomationRule, leadID string, hop int) error {
	logger := r.logger.With("rule_id", rule.ID, "lead_id", leadID, "action", string(rule.ActionType))

	if r.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "trigger.rule",
			attribute.String(otelhelper.RuleIDKey, rule.ID),
			attribute.String(otelhelper.RuleActionKey, string(rule.ActionType)),
			attribute.String(otelhelper.LeadIDKey, leadID),
		)
		defer span.End()
	}

	lead, err := r.leads.LeadByID(ctx, leadID)
	if err != nil {
		// Data error: abort before any action executes.
		r.failRule(ctx, rule, leadID, err, "lead not found: "+err.Error(), logger)

		return fmt.Errorf("failed to load lead %s: %w", leadID, err)
	}

	if !conditions.EvaluateAll(rule.Conditions, lead) {
		r.appendRuleLog(ctx, rule, leadID, models.ExecutionStatusSkipped, "conditions not met", logger)
		logger.InfoContext(ctx, "Rule conditions not met, action skipped")

		return nil
	}

	r.appendRuleLog(ctx, rule, leadID, models.ExecutionStatusRunning, "", logger)

	err = r.dispatchRuleAction(ctx, rule, lead, hop)
	if err != nil {
		r.failRule(ctx, rule, leadID, err, err.Error(), logger)

		return err
	}

	r.appendRuleLog(ctx, rule, leadID, models.ExecutionStatusSuccess, string(rule.ActionType)+" dispatched", logger)

	return nil
}

// failRule records the rule failure on the execution log and on the current
// span. The span from ctx is non-recording when tracing is disabled.
func (r *Router) failRule(
	ctx context.Context,
	rule *models.AutomationRule,
	leadID string,
	err error,
	message string,
	logger *slog.Logger,
) {
	otelhelper.SetError(trace.SpanFromContext(ctx), err,
		attribute.String(otelhelper.RuleIDKey, rule.ID),
		attribute.String(otelhelper.RuleActionKey, string(rule.ActionType)),
	)

	r.appendRuleLog(ctx, rule, leadID, models.ExecutionStatusError, message, logger)
}

func (r *Router) dispatchRuleAction(ctx context.Context, rule *models.AutomationRule, lead *models.Lead, hop int) error {
	switch rule.ActionType {
	case models.RuleActionRunBot:
		return r.runBot(ctx, rule, lead, hop)
	case models.RuleActionNotifyResponsible:
		return r.notifications.NotifyResponsible(ctx, lead.ID, rule.ConfigString("message"))
	case models.RuleActionChangeResponsible:
		userID := rule.ConfigString("user_id")
		if userID == "" {
			return fmt.Errorf("rule %s: change_responsible requires user_id", rule.ID)
		}

		return r.leads.SetResponsible(ctx, lead.ID, userID)
	case models.RuleActionAddTag:
		tagID := rule.ConfigString("tag_id")
		if tagID == "" {
			return fmt.Errorf("rule %s: add_tag requires tag_id", rule.ID)
		}

		return r.leads.AddTag(ctx, lead.ID, tagID)
	case models.RuleActionRemoveTag:
		tagID := rule.ConfigString("tag_id")
		if tagID == "" {
			return fmt.Errorf("rule %s: remove_tag requires tag_id", rule.ID)
		}

		return r.leads.RemoveTag(ctx, lead.ID, tagID)
	case models.RuleActionCreateTask:
		return r.tasks.CreateTask(ctx, lead.ID, rule.ConfigString("text"), r.taskDueAt(rule))
	default:
		return fmt.Errorf("rule %s: unknown action type %q", rule.ID, rule.ActionType)
	}
}

func (r *Router) runBot(ctx context.Context, rule *models.AutomationRule, lead *models.Lead, hop int) error {
	flowID := rule.ConfigString("flow_id")
	if flowID == "" {
		flowID = rule.ConfigString("bot_id")
	}

	if flowID == "" {
		return fmt.Errorf("rule %s: run_bot requires flow_id", rule.ID)
	}

	definition, err := r.persistence.FlowByID(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to load flow %s: %w", flowID, err)
	}

	return r.executeFlow(ctx, definition, lead, hop)
}

func (r *Router) runFlow(ctx context.Context, definition *models.Flow, leadID string, hop int) error {
	lead, err := r.leads.LeadByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to load lead %s: %w", leadID, err)
	}

	return r.executeFlow(ctx, definition, lead, hop)
}

func (r *Router) executeFlow(ctx context.Context, definition *models.Flow, lead *models.Lead, hop int) error {
	if !definition.IsActive {
		r.logger.InfoContext(ctx, "Flow is inactive, skipping", "flow_id", definition.ID)

		return nil
	}

	started := r.now()
	result := r.executor.Execute(ctx, definition, lead)

	r.publishRunResult(ctx, definition.ID, lead.ID, result, r.now().Sub(started))
	r.routeStageMoves(ctx, result.StageMoves, hop)

	if !result.Success {
		return fmt.Errorf("flow %s run %s failed: %s", definition.ID, result.ExecutionID, joinErrors(result.Errors))
	}

	return nil
}

// routeStageMoves re-enters the router for stages a run moved the lead
// through, under the hop bound.
func (r *Router) routeStageMoves(ctx context.Context, moves []models.StageChange, hop int) {
	for _, move := range moves {
		if hop+1 > MaxStageHops {
			r.logger.WarnContext(ctx, "Stage hop bound reached, dropping chained automations",
				"lead_id", move.LeadID,
				"to_stage_id", move.ToStageID,
				"hops", strconv.Itoa(hop+1),
			)

			continue
		}

		err := r.handleStageEvent(ctx, move.LeadID, move.FromStageID, models.RuleTriggerOnExit, hop+1)
		if err != nil {
			r.logger.ErrorContext(ctx, "Chained on_exit routing failed", "error", err)
		}

		err = r.handleStageEvent(ctx, move.LeadID, move.ToStageID, models.RuleTriggerOnEnter, hop+1)
		if err != nil {
			r.logger.ErrorContext(ctx, "Chained on_enter routing failed", "error", err)
		}
	}
}

func (r *Router) publishRunResult(ctx context.Context, flowID, leadID string, result flow.Result, duration time.Duration) {
	if r.bus == nil {
		return
	}

	var event eventbus.Event

	if result.Success {
		event = events.AutomationRunFinished{
			BaseEvent:     events.NewBaseEvent(events.AutomationRunFinishedEvent, leadID),
			FlowID:        flowID,
			ExecutionID:   result.ExecutionID,
			NodesExecuted: result.NodesExecuted,
			Duration:      duration,
		}
	} else {
		event = events.AutomationRunFailed{
			BaseEvent:     events.NewBaseEvent(events.AutomationRunFailedEvent, leadID),
			FlowID:        flowID,
			ExecutionID:   result.ExecutionID,
			NodesExecuted: result.NodesExecuted,
			Errors:        result.Errors,
			Duration:      duration,
		}
	}

	err := r.bus.Publish(ctx, leadID, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish run result", "flow_id", flowID, "error", err)
	}
}

func (r *Router) taskDueAt(rule *models.AutomationRule) time.Time {
	dueAt := r.now().UTC()

	if hours, ok := rule.ActionConfig["due_in_hours"].(float64); ok && hours > 0 {
		dueAt = dueAt.Add(time.Duration(hours * float64(time.Hour)))
	}

	return dueAt
}

func (r *Router) appendRuleLog(
	ctx context.Context,
	rule *models.AutomationRule,
	leadID string,
	status models.ExecutionStatus,
	message string,
	logger *slog.Logger,
) {
	entry := models.ExecutionLogEntry{
		ID:        execlog.NewEntryID(),
		FlowID:    rule.ID,
		LeadID:    leadID,
		NodeID:    string(rule.ActionType),
		Status:    status,
		Message:   message,
		Timestamp: r.now().UTC(),
	}

	err := r.execLog.Append(ctx, entry)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to append rule log entry", "error", err)
	}
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "unknown error"
	}

	return strings.Join(errs, "; ")
}
