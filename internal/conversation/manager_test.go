package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-bot/codecoder/internal/conversation"
)

type echoAgent struct{}

func (echoAgent) HandleConversation(ctx context.Context, msg conversation.Message) (conversation.Response, error) {
	return conversation.Response{Text: "echo: " + msg.Text, Type: conversation.ResponseTypeComplete}, nil
}

func TestHandleConversationRequest_UsesRegisteredAgent(t *testing.T) {
	ccm := conversation.NewConversationConnectionManager()
	ccm.SetAgent(echoAgent{})

	resp, err := ccm.HandleConversationRequest(conversation.ConversationRequest{
		SessionID: "sess-1",
		Message:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", resp.Response)
	assert.Equal(t, "sess-1", resp.SessionID)
}

func TestHandleConversationRequest_PersistsSessionHistory(t *testing.T) {
	ccm := conversation.NewConversationConnectionManager()
	ccm.SetAgent(echoAgent{})

	_, err := ccm.HandleConversationRequest(conversation.ConversationRequest{SessionID: "sess-2", Message: "one"})
	require.NoError(t, err)
	_, err = ccm.HandleConversationRequest(conversation.ConversationRequest{SessionID: "sess-2", Message: "two"})
	require.NoError(t, err)

	session, ok := ccm.GetSession("sess-2")
	require.True(t, ok)
	assert.Len(t, session.GetMessages(), 4) // 2 user + 2 assistant turns
}

func TestHandleConversationRequest_EmptySessionIDCreatesNewSession(t *testing.T) {
	ccm := conversation.NewConversationConnectionManager()
	ccm.SetAgent(echoAgent{})

	resp, err := ccm.HandleConversationRequest(conversation.ConversationRequest{Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleConversationRequest_FallsBackWithoutAgent(t *testing.T) {
	ccm := conversation.NewConversationConnectionManager()

	resp, err := ccm.HandleConversationRequest(conversation.ConversationRequest{SessionID: "sess-3", Message: "hi"})
	require.NoError(t, err)
	assert.Contains(t, resp.Response, "hi")
}

func TestCleanupExpiredSessions_RemovesStaleSessions(t *testing.T) {
	ccm := conversation.NewConversationConnectionManager()
	session := ccm.GetOrCreateSession("stale")
	session.AddMessage(conversation.ChatMessage{Type: "user", Content: "hi"})

	ccm.CleanupExpiredSessions(-time.Second)

	_, ok := ccm.GetSession("stale")
	assert.False(t, ok)
}
