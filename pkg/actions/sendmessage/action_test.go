package sendmessage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadrun/leadrun/pkg/actions"
	"github.com/leadrun/leadrun/pkg/gateways/memory"
	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/testutil"
)

func newHandler(t *testing.T) (*Handler, *memory.MessagingGateway) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	gateway := memory.NewMessagingGateway()

	return NewHandler(gateway, logger), gateway
}

func messageNode(text string) *models.Node {
	return testutil.CreateTestNode(testutil.WithData(models.SendMessageData{Text: text}))
}

func TestHandler_Execute_RendersPlaceholders(t *testing.T) {
	handler, gateway := newHandler(t)

	lead := testutil.CreateTestLead()
	lead.ChannelID = "channel-wa"

	outcome, err := handler.Execute(context.Background(), actions.RunContext{},
		messageNode("hi {{name}}, we have your number {{phone}}"), lead)
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	messages := gateway.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "channel-wa", messages[0].ChannelID)
	assert.Equal(t, "hi "+lead.Name+", we have your number "+lead.Phone, messages[0].Text)
}

func TestHandler_Execute_PrefersMessengerID(t *testing.T) {
	handler, gateway := newHandler(t)

	lead := testutil.CreateTestLead()
	lead.ChannelID = "channel-wa"
	lead.MessengerID = "wa-12345"
	lead.Phone = "+55 (11) 99999-0000"

	_, err := handler.Execute(context.Background(), actions.RunContext{}, messageNode("hello"), lead)
	require.NoError(t, err)

	messages := gateway.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "wa-12345", messages[0].Address)
}

func TestHandler_Execute_FallsBackToNormalizedPhone(t *testing.T) {
	handler, gateway := newHandler(t)

	lead := testutil.CreateTestLead()
	lead.ChannelID = "channel-wa"
	lead.MessengerID = ""
	lead.Phone = "+55 (11) 99999-0000"

	_, err := handler.Execute(context.Background(), actions.RunContext{}, messageNode("hello"), lead)
	require.NoError(t, err)

	messages := gateway.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "+5511999990000", messages[0].Address)
}

func TestHandler_Execute_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		prep func(lead *models.Lead)
	}{
		{
			name: "blank text",
			text: "   ",
			prep: func(lead *models.Lead) { lead.ChannelID = "channel-wa" },
		},
		{
			name: "missing channel",
			text: "hello",
			prep: func(lead *models.Lead) { lead.ChannelID = "" },
		},
		{
			name: "no resolvable address",
			text: "hello",
			prep: func(lead *models.Lead) {
				lead.ChannelID = "channel-wa"
				lead.MessengerID = ""
				lead.Phone = "n/a"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, gateway := newHandler(t)

			lead := testutil.CreateTestLead()
			tt.prep(lead)

			_, err := handler.Execute(context.Background(), actions.RunContext{}, messageNode(tt.text), lead)
			require.Error(t, err)
			assert.True(t, actions.IsConfiguration(err))
			assert.Empty(t, gateway.Messages())
		})
	}
}

func TestHandler_Execute_GatewayFailureIsTransportError(t *testing.T) {
	handler, gateway := newHandler(t)
	gateway.FailWith = errors.New("provider unavailable")

	lead := testutil.CreateTestLead()
	lead.ChannelID = "channel-wa"

	_, err := handler.Execute(context.Background(), actions.RunContext{}, messageNode("hello"), lead)
	require.Error(t, err)
	assert.True(t, actions.IsTransport(err))
}
