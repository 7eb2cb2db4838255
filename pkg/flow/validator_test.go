package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/testutil"
)

func findIssue(report *Report, nodeID string, severity IssueSeverity) *Issue {
	for i, issue := range report.Issues {
		if issue.NodeID == nodeID && issue.Severity == severity {
			return &report.Issues[i]
		}
	}

	return nil
}

func TestValidate_CleanFlow(t *testing.T) {
	first := testutil.CreateTestNode(testutil.WithID("n1"),
		testutil.WithData(models.SendMessageData{Text: "hi"}))
	second := testutil.CreateTestNode(testutil.WithID("n2"),
		testutil.WithData(models.TagData{Action: models.TagActionAdd, TagID: "tag-a"}))

	flow := testutil.CreateTestFlow([]*models.Node{first, second}, testutil.Chain(first, second))

	report, err := Validate(flow)
	require.NoError(t, err)

	assert.True(t, report.Valid())
	assert.Empty(t, report.Issues)
}

func TestValidate_DanglingEdgeIsError(t *testing.T) {
	node := testutil.CreateTestNode(testutil.WithID("n1"),
		testutil.WithData(models.SendMessageData{Text: "hi"}))

	flow := testutil.CreateTestFlow(
		[]*models.Node{node},
		[]*models.Edge{{ID: "e1", Source: "n1", Target: "ghost"}},
	)

	report, err := Validate(flow)
	require.NoError(t, err)

	assert.False(t, report.Valid())
	require.Len(t, report.Issues, 1)
	assert.Equal(t, SeverityError, report.Issues[0].Severity)
	assert.Equal(t, "e1", report.Issues[0].EdgeID)
}

func TestValidate_ConditionMissingBranchIsWarning(t *testing.T) {
	cond := testutil.CreateTestNode(testutil.WithID("cond"),
		testutil.WithData(models.ConditionData{Field: "tags", Operator: models.OperatorEquals, Value: "vip"}))
	next := testutil.CreateTestNode(testutil.WithID("next"),
		testutil.WithData(models.SendMessageData{Text: "hi"}))

	flow := testutil.CreateTestFlow(
		[]*models.Node{cond, next},
		[]*models.Edge{{ID: "e1", Source: "cond", Target: "next", Label: "true"}},
	)

	report, err := Validate(flow)
	require.NoError(t, err)

	assert.True(t, report.Valid(), "missing branch edges are warnings, the flow still runs")

	issue := findIssue(report, "cond", SeverityWarning)
	require.NotNil(t, issue)
	assert.Contains(t, issue.Message, `"false"`)
}

func TestValidate_AmbiguousFanOutIsWarning(t *testing.T) {
	first := testutil.CreateTestNode(testutil.WithID("n1"),
		testutil.WithData(models.SendMessageData{Text: "hi"}))
	a := testutil.CreateTestNode(testutil.WithID("a"),
		testutil.WithData(models.WaitData{}))
	b := testutil.CreateTestNode(testutil.WithID("b"),
		testutil.WithData(models.WaitData{}))

	flow := testutil.CreateTestFlow(
		[]*models.Node{first, a, b},
		[]*models.Edge{
			{ID: "e1", Source: "n1", Target: "a"},
			{ID: "e2", Source: "n1", Target: "b"},
		},
	)

	report, err := Validate(flow)
	require.NoError(t, err)

	issue := findIssue(report, "n1", SeverityWarning)
	require.NotNil(t, issue)
	assert.Contains(t, issue.Message, "only the first is followed")
}

func TestValidate_InvalidDataIsError(t *testing.T) {
	node := &models.Node{
		ID:   "bad",
		Type: models.NodeTypeWait,
		Data: models.DecodeNodeData(models.NodeTypeWait, json.RawMessage(`{"delay_hours":"soon"}`)),
	}

	flow := testutil.CreateTestFlow([]*models.Node{node}, nil)

	report, err := Validate(flow)
	require.NoError(t, err)

	assert.False(t, report.Valid())
	require.NotNil(t, findIssue(report, "bad", SeverityError))
}

func TestValidate_UnreachableNodeIsWarning(t *testing.T) {
	entry := testutil.CreateTestNode(testutil.WithID("entry"),
		testutil.WithData(models.SendMessageData{Text: "hi"}))
	island := testutil.CreateTestNode(testutil.WithID("island"),
		testutil.WithData(models.SendMessageData{Text: "never"}))
	reached := testutil.CreateTestNode(testutil.WithID("reached"),
		testutil.WithData(models.WaitData{}))

	flow := testutil.CreateTestFlow(
		[]*models.Node{entry, island, reached},
		[]*models.Edge{
			{ID: "e1", Source: "entry", Target: "reached"},
			// island loops onto itself so it is nobody's entry candidate
			{ID: "e2", Source: "island", Target: "island"},
		},
	)

	report, err := Validate(flow)
	require.NoError(t, err)

	assert.True(t, report.Valid())
	require.NotNil(t, findIssue(report, "island", SeverityWarning))
	assert.Nil(t, findIssue(report, "reached", SeverityWarning))
}
