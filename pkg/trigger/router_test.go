package trigger

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/leadrun/leadrun/pkg/actions/condition"
	"github.com/leadrun/leadrun/pkg/actions/movestage"
	"github.com/leadrun/leadrun/pkg/actions/sendmessage"
	"github.com/leadrun/leadrun/pkg/actions/tag"
	"github.com/leadrun/leadrun/pkg/actions/wait"
	"github.com/leadrun/leadrun/pkg/execlog"
	"github.com/leadrun/leadrun/pkg/flow"
	"github.com/leadrun/leadrun/pkg/gateways/memory"
	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/otelhelper"
	"github.com/leadrun/leadrun/pkg/persistence/file"
	"github.com/leadrun/leadrun/pkg/registry"
	"github.com/leadrun/leadrun/pkg/testutil"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type routerEnv struct {
	router        *Router
	store         *file.Persistence
	leads         *memory.LeadStore
	notifications *memory.NotificationService
	tasks         *memory.TaskService
	sink          *execlog.MemorySink
}

func newRouterEnv(t *testing.T, opts ...Option) *routerEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	leads := memory.NewLeadStore()
	messaging := memory.NewMessagingGateway()
	notifications := memory.NewNotificationService(logger)
	tasks := memory.NewTaskService()
	sink := execlog.NewMemorySink()

	reg := registry.NewRegistry(logger)
	reg.Register(sendmessage.NewHandler(messaging, logger))
	reg.Register(condition.NewHandler())
	reg.Register(wait.NewHandler())
	reg.Register(tag.NewHandler(leads, logger))
	reg.Register(movestage.NewHandler(leads, logger))

	executor := flow.NewExecutor(reg, sink, logger)

	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)

	return &routerEnv{
		router: NewRouter(store, leads, notifications, tasks, executor, sink, logger, opts...),
		store:         store,
		leads:         leads,
		notifications: notifications,
		tasks:         tasks,
		sink:          sink,
	}
}

func (env *routerEnv) saveRule(t *testing.T, rule *models.AutomationRule) {
	t.Helper()

	rule.IsActive = true
	require.NoError(t, env.store.SaveRule(context.Background(), rule))
}

func addTagRule(id, stageID, tagID string, position int) *models.AutomationRule {
	return &models.AutomationRule{
		ID:           id,
		StageID:      stageID,
		Trigger:      models.RuleTriggerOnEnter,
		ActionType:   models.RuleActionAddTag,
		ActionConfig: map[string]any{"tag_id": tagID},
		Position:     position,
	}
}

func TestRouter_HandleStageEntered_RunsRulesInPositionOrder(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	env.saveRule(t, addTagRule("rule-second", "stage-new", "tag-b", 2))
	env.saveRule(t, addTagRule("rule-first", "stage-new", "tag-a", 1))

	lead := testutil.CreateTestLead(testutil.WithStage("stage-new"))
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleStageEntered(ctx, lead.ID, "stage-new"))

	stored, err := env.leads.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tags, 2)
	assert.Equal(t, "tag-a", stored.Tags[0].ID)
	assert.Equal(t, "tag-b", stored.Tags[1].ID)
}

func TestRouter_RunRule_ConditionsNotMetSkipsAction(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	rule := addTagRule("rule-guarded", "stage-new", "tag-vip", 1)
	rule.Conditions = []models.Condition{
		{Field: "name", Operator: models.OperatorEquals, Value: "Zed"},
	}
	env.saveRule(t, rule)

	lead := testutil.CreateTestLead(testutil.WithStage("stage-new"))
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleStageEntered(ctx, lead.ID, "stage-new"))

	stored, err := env.leads.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Tags)

	entries, err := env.sink.EntriesByFlow(ctx, "rule-guarded")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ExecutionStatusSkipped, entries[0].Status)
	assert.Equal(t, string(models.RuleActionAddTag), entries[0].NodeID)
	assert.Equal(t, lead.ID, entries[0].LeadID)
}

func TestRouter_HandleStageEntered_EnqueuesAfterTimeRules(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	rule := &models.AutomationRule{
		ID:                "rule-delayed",
		StageID:           "stage-negotiation",
		Trigger:           models.RuleTriggerAfterTime,
		TriggerDelayHours: 24,
		ActionType:        models.RuleActionNotifyResponsible,
		ActionConfig:      map[string]any{"message": "lead is idle"},
	}
	env.saveRule(t, rule)

	lead := testutil.CreateTestLead(testutil.WithStage("stage-negotiation"))
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleStageEntered(ctx, lead.ID, "stage-negotiation"))

	// Not due before the delay elapses.
	due, err := env.store.DueTriggers(ctx, fixedNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = env.store.DueTriggers(ctx, fixedNow.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "rule-delayed", due[0].AutomationID)
	assert.Equal(t, lead.ID, due[0].LeadID)
	assert.Equal(t, models.TriggerStatusPending, due[0].Status)
	assert.Equal(t, fixedNow.Add(24*time.Hour), due[0].ExecuteAt)

	// No notification was sent inline.
	assert.Empty(t, env.notifications.Notifications())
}

func TestRouter_HandleStageExited_DoesNotEnqueueAfterTimeRules(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	rule := &models.AutomationRule{
		ID:                "rule-delayed",
		StageID:           "stage-negotiation",
		Trigger:           models.RuleTriggerAfterTime,
		TriggerDelayHours: 2,
		ActionType:        models.RuleActionCreateTask,
	}
	env.saveRule(t, rule)

	lead := testutil.CreateTestLead()
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleStageExited(ctx, lead.ID, "stage-negotiation"))

	due, err := env.store.DueTriggers(ctx, fixedNow.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRouter_RuleFailureDoesNotBlockBatch(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	broken := &models.AutomationRule{
		ID:         "rule-broken",
		StageID:    "stage-new",
		Trigger:    models.RuleTriggerOnEnter,
		ActionType: models.RuleActionAddTag, // no tag_id configured
		Position:   1,
	}
	env.saveRule(t, broken)
	env.saveRule(t, addTagRule("rule-healthy", "stage-new", "tag-b", 2))

	lead := testutil.CreateTestLead(testutil.WithStage("stage-new"))
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleStageEntered(ctx, lead.ID, "stage-new"))

	stored, err := env.leads.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tags, 1)
	assert.Equal(t, "tag-b", stored.Tags[0].ID)

	entries, err := env.sink.EntriesByFlow(ctx, "rule-broken")
	require.NoError(t, err)
	require.Len(t, entries, 2, "running then error")
	assert.Equal(t, models.ExecutionStatusError, entries[1].Status)
}

func TestRouter_RunBotChainsStageAutomations(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	move := testutil.CreateTestNode(testutil.WithID("move"),
		testutil.WithData(models.MoveStageData{StageID: "stage-won"}))
	bot := testutil.CreateTestFlow([]*models.Node{move}, nil, func(f *models.Flow) {
		f.ID = "flow-close"
		f.Trigger = models.FlowTriggerStage
	})
	require.NoError(t, env.store.SaveFlow(ctx, bot))

	rule := &models.AutomationRule{
		ID:           "rule-close",
		StageID:      "stage-negotiation",
		Trigger:      models.RuleTriggerOnEnter,
		ActionType:   models.RuleActionRunBot,
		ActionConfig: map[string]any{"flow_id": "flow-close"},
	}
	env.saveRule(t, rule)
	env.saveRule(t, addTagRule("rule-arrival", "stage-won", "tag-won", 1))

	lead := testutil.CreateTestLead(testutil.WithStage("stage-negotiation"))
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleStageEntered(ctx, lead.ID, "stage-negotiation"))

	stored, err := env.leads.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "stage-won", stored.StageID)
	require.Len(t, stored.Tags, 1)
	assert.Equal(t, "tag-won", stored.Tags[0].ID, "the target stage's on_enter rules ran")

	history := env.leads.StageHistory()
	require.Len(t, history, 1)
	assert.Equal(t, models.AutomationAuthorID, history[0].AuthorID)
}

func TestRouter_StageHopBoundStopsCycles(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	// Two stages whose automations bounce the lead at each other.
	saveBouncer := func(flowID, targetStage string) {
		move := testutil.CreateTestNode(testutil.WithID("move-"+targetStage),
			testutil.WithData(models.MoveStageData{StageID: targetStage}))
		bouncer := testutil.CreateTestFlow([]*models.Node{move}, nil, func(f *models.Flow) {
			f.ID = flowID
			f.Trigger = models.FlowTriggerStage
		})
		require.NoError(t, env.store.SaveFlow(ctx, bouncer))
	}
	saveBouncer("flow-to-b", "stage-b")
	saveBouncer("flow-to-a", "stage-a")

	env.saveRule(t, &models.AutomationRule{
		ID:         "rule-a",
		StageID:    "stage-a",
		Trigger:    models.RuleTriggerOnEnter,
		ActionType: models.RuleActionRunBot,
		ActionConfig: map[string]any{
			"flow_id": "flow-to-b",
		},
	})
	env.saveRule(t, &models.AutomationRule{
		ID:         "rule-b",
		StageID:    "stage-b",
		Trigger:    models.RuleTriggerOnEnter,
		ActionType: models.RuleActionRunBot,
		ActionConfig: map[string]any{
			"flow_id": "flow-to-a",
		},
	})

	lead := testutil.CreateTestLead(testutil.WithStage("stage-a"))
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleStageEntered(ctx, lead.ID, "stage-a"))

	// The initial event plus MaxStageHops chained hops each move the lead
	// once; the next hop is dropped.
	history := env.leads.StageHistory()
	assert.Len(t, history, MaxStageHops+1)
}

func TestRouter_HandleMessageReceived_RunsMatchingFlows(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	tagNode := testutil.CreateTestNode(testutil.WithID("tag"),
		testutil.WithData(models.TagData{Action: models.TagActionAdd, TagID: "tag-replied"}))
	replied := testutil.CreateTestFlow([]*models.Node{tagNode}, nil, func(f *models.Flow) {
		f.ID = "flow-replied"
	})
	require.NoError(t, env.store.SaveFlow(ctx, replied))

	inactive := testutil.CreateTestFlow([]*models.Node{testutil.CreateTestNode()}, nil, func(f *models.Flow) {
		f.ID = "flow-dormant"
		f.IsActive = false
	})
	require.NoError(t, env.store.SaveFlow(ctx, inactive))

	lead := testutil.CreateTestLead()
	env.leads.PutLead(lead)

	require.NoError(t, env.router.HandleMessageReceived(ctx, lead.ID))

	stored, err := env.leads.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tags, 1)
	assert.Equal(t, "tag-replied", stored.Tags[0].ID)
}

func TestRouter_RuleActions(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	lead := testutil.CreateTestLead(testutil.WithStage("stage-new"))
	env.leads.PutLead(lead)

	env.saveRule(t, &models.AutomationRule{
		ID:           "rule-notify",
		StageID:      "stage-new",
		Trigger:      models.RuleTriggerOnEnter,
		ActionType:   models.RuleActionNotifyResponsible,
		ActionConfig: map[string]any{"message": "fresh lead"},
		Position:     1,
	})
	env.saveRule(t, &models.AutomationRule{
		ID:           "rule-assign",
		StageID:      "stage-new",
		Trigger:      models.RuleTriggerOnEnter,
		ActionType:   models.RuleActionChangeResponsible,
		ActionConfig: map[string]any{"user_id": "user-7"},
		Position:     2,
	})
	env.saveRule(t, &models.AutomationRule{
		ID:           "rule-task",
		StageID:      "stage-new",
		Trigger:      models.RuleTriggerOnEnter,
		ActionType:   models.RuleActionCreateTask,
		ActionConfig: map[string]any{"text": "call back", "due_in_hours": float64(4)},
		Position:     3,
	})

	require.NoError(t, env.router.HandleStageEntered(ctx, lead.ID, "stage-new"))

	notifications := env.notifications.Notifications()
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0], "fresh lead")

	stored, err := env.leads.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-7", stored.ResponsibleID)

	tasks := env.tasks.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "call back", tasks[0].Text)
	assert.Equal(t, fixedNow.Add(4*time.Hour), tasks[0].DueAt)
}

func TestRouter_RunRule_FailureRecordedOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	env := newRouterEnv(t, WithTracer(provider.Tracer("test")))

	rule := addTagRule("rule-orphan", "stage-new", "tag-a", 1)
	env.saveRule(t, rule)

	err := env.router.RunRule(context.Background(), rule, "lead-missing", 0)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "trigger.rule", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(),
		attribute.String(otelhelper.RuleIDKey, "rule-orphan"))
	assert.Contains(t, span.Attributes(),
		attribute.String(otelhelper.RuleActionKey, string(models.RuleActionAddTag)))
}

func TestJoinErrors(t *testing.T) {
	assert.Equal(t, "unknown error", joinErrors(nil))
	assert.Equal(t, "node n1: boom", joinErrors([]string{"node n1: boom"}))
	assert.Equal(t, "a; b; c", joinErrors([]string{"a", "b", "c"}))
}
