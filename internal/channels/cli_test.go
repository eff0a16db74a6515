package channels

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-bot/codecoder/internal/channelbus"
)

func TestCLI_ListenPushesOneMessagePerLine(t *testing.T) {
	in := strings.NewReader("hello\n\nworld\n")
	var out bytes.Buffer
	ch := NewCLI(in, &out, "tester")

	msgs := make(chan channelbus.ChannelMessage, 4)
	err := ch.Listen(context.Background(), msgs)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, msgs, 2)

	first := <-msgs
	assert.Equal(t, "cli", first.Channel)
	assert.Equal(t, "tester", first.Sender)
	assert.Equal(t, "hello", first.Content)

	second := <-msgs
	assert.Equal(t, "world", second.Content)
}

func TestCLI_Send_WritesToOutput(t *testing.T) {
	var out bytes.Buffer
	ch := NewCLI(strings.NewReader(""), &out, "tester")

	require.NoError(t, ch.Send(context.Background(), "tester", "approved"))
	assert.Contains(t, out.String(), "[tester] approved")
}

func TestCLI_Listen_CancelledContextStops(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	ch := NewCLI(r, io.Discard, "tester")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgs := make(chan channelbus.ChannelMessage)
	go func() { _, _ = w.Write([]byte("line\n")) }()
	err := ch.Listen(ctx, msgs)
	assert.Error(t, err)
}
