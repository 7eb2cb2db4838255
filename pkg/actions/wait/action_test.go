package wait

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/testutil"
)

func TestHandler_Execute_IsInlineNoOp(t *testing.T) {
	handler := NewHandler()
	lead := testutil.CreateTestLead()

	node := testutil.CreateTestNode(testutil.WithData(models.WaitData{DelayHours: 2.5}))

	outcome, err := handler.Execute(context.Background(), actions.RunContext{}, node, lead)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Contains(t, outcome.Message, "2.5h")
}

func TestHandler_Execute_ZeroDelay(t *testing.T) {
	handler := NewHandler()

	node := testutil.CreateTestNode(testutil.WithData(models.WaitData{}))

	outcome, err := handler.Execute(context.Background(), actions.RunContext{}, node, testutil.CreateTestLead())
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}
