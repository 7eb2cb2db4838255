package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)

	return parsed
}

func TestNode_UnmarshalJSON_TypedPayloads(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected NodeData
	}{
		{
			name:     "send_message",
			input:    `{"id":"n1","type":"send_message","data":{"text":"hi {{name}}"}}`,
			expected: SendMessageData{Text: "hi {{name}}"},
		},
		{
			name:     "condition",
			input:    `{"id":"n1","type":"condition","data":{"field":"tags","operator":"equals","value":"vip"}}`,
			expected: ConditionData{Field: "tags", Operator: OperatorEquals, Value: "vip"},
		},
		{
			name:     "wait",
			input:    `{"id":"n1","type":"wait","data":{"delay_hours":24}}`,
			expected: WaitData{DelayHours: 24},
		},
		{
			name:     "tag",
			input:    `{"id":"n1","type":"tag","data":{"action":"add","tag_id":"tag-vip"}}`,
			expected: TagData{Action: TagActionAdd, TagID: "tag-vip"},
		},
		{
			name:     "move_stage",
			input:    `{"id":"n1","type":"move_stage","data":{"stage_id":"stage-won"}}`,
			expected: MoveStageData{StageID: "stage-won"},
		},
		{
			name:     "webhook",
			input:    `{"id":"n1","type":"webhook","data":{"url":"https://example.com","method":"POST","fields":["id","name"]}}`,
			expected: WebhookData{URL: "https://example.com", Method: "POST", Fields: []string{"id", "name"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var node Node

			require.NoError(t, json.Unmarshal([]byte(tt.input), &node))
			assert.Equal(t, tt.expected, node.Data)
		})
	}
}

func TestNode_UnmarshalJSON_DegradesToInvalidData(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "unknown node type",
			input: `{"id":"n1","type":"teleport","data":{"x":1}}`,
		},
		{
			name:  "payload of the wrong shape",
			input: `{"id":"n1","type":"wait","data":{"delay_hours":"soon"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var node Node

			require.NoError(t, json.Unmarshal([]byte(tt.input), &node), "a stored flow must always load")

			invalid, ok := node.Data.(InvalidData)
			require.True(t, ok, "expected InvalidData, got %T", node.Data)
			assert.NotEmpty(t, invalid.Reason)
			assert.Contains(t, invalid.Error(), string(node.Type))
		})
	}
}

func TestNode_MarshalJSON_RoundTripsInvalidPayload(t *testing.T) {
	input := `{"id":"n1","type":"teleport","data":{"x":1}}`

	var node Node

	require.NoError(t, json.Unmarshal([]byte(input), &node))

	encoded, err := json.Marshal(node)
	require.NoError(t, err)

	// The malformed payload survives a save/load cycle byte for byte.
	assert.JSONEq(t, input, string(encoded))
}

func TestNode_UnmarshalJSON_MissingDataDefaultsToEmptyPayload(t *testing.T) {
	var node Node

	require.NoError(t, json.Unmarshal([]byte(`{"id":"n1","type":"wait"}`), &node))
	assert.Equal(t, WaitData{}, node.Data)
}

func TestFlow_EntryNode(t *testing.T) {
	a := &Node{ID: "a", Type: NodeTypeWait, Data: WaitData{}}
	b := &Node{ID: "b", Type: NodeTypeWait, Data: WaitData{}}
	c := &Node{ID: "c", Type: NodeTypeWait, Data: WaitData{}}

	t.Run("node that is no edge target", func(t *testing.T) {
		flow := &Flow{
			Nodes: []*Node{b, a, c},
			Edges: []*Edge{
				{ID: "e1", Source: "a", Target: "b"},
				{ID: "e2", Source: "b", Target: "c"},
			},
		}

		require.NotNil(t, flow.EntryNode())
		assert.Equal(t, "a", flow.EntryNode().ID)
	})

	t.Run("fully cyclic graph falls back to first node", func(t *testing.T) {
		flow := &Flow{
			Nodes: []*Node{a, b},
			Edges: []*Edge{
				{ID: "e1", Source: "a", Target: "b"},
				{ID: "e2", Source: "b", Target: "a"},
			},
		}

		require.NotNil(t, flow.EntryNode())
		assert.Equal(t, "a", flow.EntryNode().ID)
	})

	t.Run("empty flow has no entry", func(t *testing.T) {
		flow := &Flow{}
		assert.Nil(t, flow.EntryNode())
	})
}

func TestLead_TagHelpers(t *testing.T) {
	lead := &Lead{
		Tags: []Tag{
			{ID: "tag-vip", Name: "VIP"},
			{ID: "tag-trial", Name: "Trial"},
		},
	}

	assert.Equal(t, []string{"tag-vip", "tag-trial"}, lead.TagIDs())
	assert.True(t, lead.HasTag("tag-vip"))
	assert.False(t, lead.HasTag("tag-churned"))
	assert.ElementsMatch(t, []string{"VIP", "Trial", "tag-vip", "tag-trial"}, lead.TagValues())
}

func TestQueuedTrigger_Due(t *testing.T) {
	trigger := QueuedTrigger{
		Status:    TriggerStatusPending,
		ExecuteAt: mustParseTime(t, "2026-01-02T10:00:00Z"),
	}

	assert.False(t, trigger.Due(mustParseTime(t, "2026-01-02T09:59:59Z")))
	assert.True(t, trigger.Due(mustParseTime(t, "2026-01-02T10:00:00Z")))
	assert.True(t, trigger.Due(mustParseTime(t, "2026-01-03T10:00:00Z")))

	trigger.Status = TriggerStatusFailed
	assert.False(t, trigger.Due(mustParseTime(t, "2026-01-03T10:00:00Z")), "failed entries are never due again")
}
