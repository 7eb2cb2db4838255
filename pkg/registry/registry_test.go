package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/models"
)

type stubHandler struct {
	nodeType models.NodeType
}

func (h stubHandler) Type() models.NodeType { return h.nodeType }

func (h stubHandler) Execute(_ context.Context, _ actions.RunContext, _ *models.Node, _ *models.Lead) (actions.Outcome, error) {
	return actions.Outcome{Success: true}, nil
}

func newRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return NewRegistry(logger)
}

func TestRegistry_HandlerFor(t *testing.T) {
	reg := newRegistry()
	reg.Register(stubHandler{nodeType: models.NodeTypeTag})

	handler, err := reg.HandlerFor(models.NodeTypeTag)
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeTag, handler.Type())

	_, err = reg.HandlerFor(models.NodeTypeWebhook)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_Types(t *testing.T) {
	reg := newRegistry()
	reg.Register(stubHandler{nodeType: models.NodeTypeTag})
	reg.Register(stubHandler{nodeType: models.NodeTypeCondition})

	assert.ElementsMatch(t,
		[]models.NodeType{models.NodeTypeTag, models.NodeTypeCondition},
		reg.Types())
}

func TestValidateNodeData(t *testing.T) {
	tests := []struct {
		name       string
		node       models.Node
		violations int
	}{
		{
			name: "valid send_message",
			node: models.Node{
				ID:   "n1",
				Type: models.NodeTypeSendMessage,
				Data: models.SendMessageData{Text: "hello"},
			},
			violations: 0,
		},
		{
			name: "send_message with empty text",
			node: models.Node{
				ID:   "n1",
				Type: models.NodeTypeSendMessage,
				Data: models.SendMessageData{},
			},
			violations: 1,
		},
		{
			name: "condition with unknown operator",
			node: models.Node{
				ID:   "n2",
				Type: models.NodeTypeCondition,
				Data: models.ConditionData{Field: "stage_id", Operator: "matches", Value: "x"},
			},
			violations: 1,
		},
		{
			name: "webhook rejects plain http",
			node: models.Node{
				ID:   "n3",
				Type: models.NodeTypeWebhook,
				Data: models.WebhookData{URL: "http://example.com/hook"},
			},
			violations: 1,
		},
		{
			name: "webhook without method",
			node: models.Node{
				ID:   "n3",
				Type: models.NodeTypeWebhook,
				Data: models.WebhookData{URL: "https://example.com/hook"},
			},
			violations: 0,
		},
		{
			name: "tag without tag id",
			node: models.Node{
				ID:   "n4",
				Type: models.NodeTypeTag,
				Data: models.TagData{Action: models.TagActionAdd},
			},
			violations: 1,
		},
		{
			name: "wait defaults",
			node: models.Node{
				ID:   "n5",
				Type: models.NodeTypeWait,
				Data: models.WaitData{},
			},
			violations: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations, err := ValidateNodeData(&tt.node)
			require.NoError(t, err)
			assert.Len(t, violations, tt.violations)
		})
	}
}

func TestValidateNodeData_UnknownType(t *testing.T) {
	node := models.Node{ID: "n9", Type: "noop"}

	violations, err := ValidateNodeData(&node)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "noop")
}
