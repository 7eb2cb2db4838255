package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
	"github.com/leadrun/leadrun/pkg/testutil"
)

func newStore(t *testing.T) *Persistence {
	t.Helper()

	store, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store
}

func TestPersistence_FlowRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	message := testutil.CreateTestNode(testutil.WithID("n1"),
		testutil.WithData(models.SendMessageData{Text: "hi {{name}}"}))
	check := testutil.CreateTestNode(testutil.WithID("n2"),
		testutil.WithData(models.ConditionData{Field: "stage_id", Operator: models.OperatorEquals, Value: "stage-won"}))

	flow := testutil.CreateTestFlow([]*models.Node{message, check}, testutil.Chain(message, check))

	require.NoError(t, store.SaveFlow(ctx, flow))
	assert.False(t, flow.CreatedAt.IsZero(), "save stamps created_at")

	loaded, err := store.FlowByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 2)

	// Payloads come back typed, not as raw maps.
	data, ok := loaded.Nodes[0].Data.(models.SendMessageData)
	require.True(t, ok)
	assert.Equal(t, "hi {{name}}", data.Text)

	cond, ok := loaded.Nodes[1].Data.(models.ConditionData)
	require.True(t, ok)
	assert.Equal(t, models.OperatorEquals, cond.Operator)
}

func TestPersistence_FlowByID_NotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.FlowByID(context.Background(), "flow-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestPersistence_FlowsByTrigger(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	saveFlow := func(id string, trigger models.FlowTrigger, active bool) {
		flow := testutil.CreateTestFlow(nil, nil, func(f *models.Flow) {
			f.ID = id
			f.Trigger = trigger
			f.IsActive = active
		})
		require.NoError(t, store.SaveFlow(ctx, flow))
	}

	saveFlow("flow-msg", models.FlowTriggerMessageReceived, true)
	saveFlow("flow-msg-off", models.FlowTriggerMessageReceived, false)
	saveFlow("flow-stage", models.FlowTriggerStage, true)

	matched, err := store.FlowsByTrigger(ctx, models.FlowTriggerMessageReceived)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "flow-msg", matched[0].ID)
}

func TestPersistence_IncrementFlowExecutions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	flow := testutil.CreateTestFlow(nil, nil)
	require.NoError(t, store.SaveFlow(ctx, flow))

	require.NoError(t, store.IncrementFlowExecutions(ctx, flow.ID))
	require.NoError(t, store.IncrementFlowExecutions(ctx, flow.ID))

	loaded, err := store.FlowByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.ExecutionsCount)

	err = store.IncrementFlowExecutions(ctx, "flow-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestPersistence_RulesByStage_OrderAndFiltering(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	saveRule := func(id string, position int, trigger models.RuleTrigger, active bool) {
		require.NoError(t, store.SaveRule(ctx, &models.AutomationRule{
			ID:         id,
			StageID:    "stage-new",
			Trigger:    trigger,
			ActionType: models.RuleActionAddTag,
			Position:   position,
			IsActive:   active,
		}))
	}

	saveRule("rule-late", 5, models.RuleTriggerOnEnter, true)
	saveRule("rule-early", 1, models.RuleTriggerOnEnter, true)
	saveRule("rule-off", 2, models.RuleTriggerOnEnter, false)
	saveRule("rule-exit", 3, models.RuleTriggerOnExit, true)

	rules, err := store.RulesByStage(ctx, "stage-new", models.RuleTriggerOnEnter)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "rule-early", rules[0].ID)
	assert.Equal(t, "rule-late", rules[1].ID)
}

func TestPersistence_RuleByID_NotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.RuleByID(context.Background(), "rule-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRuleNotFound(err))
}

func TestPersistence_TriggerQueue(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	enqueue := func(id string, executeAt time.Time) {
		require.NoError(t, store.EnqueueTrigger(ctx, &models.QueuedTrigger{
			ID:           id,
			AutomationID: "rule-1",
			LeadID:       "lead-1",
			ExecuteAt:    executeAt,
		}))
	}

	enqueue("queued-later", now.Add(-time.Minute))
	enqueue("queued-sooner", now.Add(-time.Hour))
	enqueue("queued-future", now.Add(time.Hour))

	due, err := store.DueTriggers(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "queued-sooner", due[0].ID, "oldest first")
	assert.Equal(t, "queued-later", due[1].ID)
	assert.Equal(t, models.TriggerStatusPending, due[0].Status, "enqueue defaults the status")

	require.NoError(t, store.MarkTriggerDone(ctx, "queued-sooner"))
	require.NoError(t, store.MarkTriggerFailed(ctx, "queued-later"))

	due, err = store.DueTriggers(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due, "settled triggers never come back")

	err = store.MarkTriggerDone(ctx, "queued-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsTriggerNotFound(err))
}

func TestPersistence_ExecutionLog(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	appendEntry := func(id, flowID, leadID string, at time.Time) {
		require.NoError(t, store.Append(ctx, models.ExecutionLogEntry{
			ID:        id,
			FlowID:    flowID,
			LeadID:    leadID,
			NodeID:    "n1",
			Status:    models.ExecutionStatusSuccess,
			Timestamp: at,
		}))
	}

	appendEntry("log-2", "flow-a", "lead-1", base.Add(time.Minute))
	appendEntry("log-1", "flow-a", "lead-1", base)
	appendEntry("log-3", "flow-b", "lead-1", base.Add(2*time.Minute))
	appendEntry("log-4", "flow-a", "lead-2", base.Add(3*time.Minute))

	byLead, err := store.EntriesByLead(ctx, "lead-1")
	require.NoError(t, err)
	require.Len(t, byLead, 3)
	assert.Equal(t, "log-1", byLead[0].ID, "timestamp order")
	assert.Equal(t, "log-2", byLead[1].ID)
	assert.Equal(t, "log-3", byLead[2].ID)

	byFlow, err := store.EntriesByFlow(ctx, "flow-a")
	require.NoError(t, err)
	require.Len(t, byFlow, 3)
	assert.Equal(t, "log-4", byFlow[2].ID)
}
