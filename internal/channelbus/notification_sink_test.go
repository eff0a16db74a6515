package channelbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainChannel struct {
	recordingChannel
}

type interactiveChannel struct {
	recordingChannel
	cardRequestID string
	cardLabel     string
}

func (c *interactiveChannel) SupportsInlineButtons() bool { return true }

func (c *interactiveChannel) SendConfirmationCard(ctx context.Context, recipient, requestID, permissionLabel string) error {
	c.cardRequestID = requestID
	c.cardLabel = permissionLabel
	return nil
}

func TestNotificationSink_SendNotification(t *testing.T) {
	bus := NewBus()
	ch := &recordingChannel{name: "telegram"}
	bus.Register(ch)

	sink := NewNotificationSink(bus)
	require.NoError(t, sink.SendNotification(context.Background(), "telegram", "alice", "hello there"))

	assert.Equal(t, []string{"alice:hello there"}, ch.sent)
}

func TestNotificationSink_SendNotification_UnknownChannel(t *testing.T) {
	sink := NewNotificationSink(NewBus())
	err := sink.SendNotification(context.Background(), "missing", "alice", "hi")
	assert.Error(t, err)
}

func TestNotificationSink_SendConfirmationRequest_PrefersInteractiveCard(t *testing.T) {
	bus := NewBus()
	ch := &interactiveChannel{recordingChannel: recordingChannel{name: "telegram"}}
	bus.Register(ch)

	sink := NewNotificationSink(bus)
	require.NoError(t, sink.SendConfirmationRequest(context.Background(), "telegram", "alice", "req-1", "delete /tmp/x"))

	assert.Equal(t, "req-1", ch.cardRequestID)
	assert.Equal(t, "delete /tmp/x", ch.cardLabel)
	assert.Empty(t, ch.sent, "interactive channel should not fall back to plain text")
}

func TestNotificationSink_SendConfirmationRequest_FallsBackToPlainText(t *testing.T) {
	bus := NewBus()
	ch := &recordingChannel{name: "cli"}
	bus.Register(ch)

	sink := NewNotificationSink(bus)
	require.NoError(t, sink.SendConfirmationRequest(context.Background(), "cli", "alice", "req-2", "deploy prod"))

	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0], "approve req-2")
	assert.Contains(t, ch.sent[0], "reject req-2")
}

func TestNotificationSink_UpdateConfirmationResult(t *testing.T) {
	bus := NewBus()
	ch := &recordingChannel{name: "telegram"}
	bus.Register(ch)

	sink := NewNotificationSink(bus)
	require.NoError(t, sink.UpdateConfirmationResult(context.Background(), "telegram", "alice", "req-3", ResponseReject))

	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0], "rejected")
}
