// Package channels holds concrete channelbus.Channel implementations.
// Only the local CLI channel is implemented directly; the remaining
// platforms spec.md §6.4 names (telegram, discord, slack, feishu,
// matrix, whatsapp, imessage) are configuration surface only until a
// transport for them is wired in (see cmd/codecoder's channel command
// for the not-implemented reporting).
package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/zero-bot/codecoder/internal/channelbus"
)

// CLI is a channelbus.Channel that reads lines from an input reader and
// writes replies to an output writer. It supports exactly one
// conversation at a time, identified by a fixed sender name, which
// makes it useful for exercising the fan-in bus and the HitL flow
// without a real chat platform.
type CLI struct {
	in     *bufio.Scanner
	out    io.Writer
	sender string
}

// NewCLI builds a CLI channel reading from in and writing to out. sender
// is the fixed identity attributed to every message read from in.
func NewCLI(in io.Reader, out io.Writer, sender string) *CLI {
	if sender == "" {
		sender = "local"
	}
	return &CLI{in: bufio.NewScanner(in), out: out, sender: sender}
}

func (c *CLI) Name() string { return "cli" }

// Listen scans lines from the input reader, pushing one ChannelMessage
// per non-blank line until ctx is cancelled or the reader is exhausted.
// A clean EOF is itself an unexpected exit from the supervisor's point
// of view: stdin doesn't normally close on a long-running process, so
// the caller should treat repeated restarts here as "no more input".
func (c *CLI) Listen(ctx context.Context, sender chan<- channelbus.ChannelMessage) error {
	for c.in.Scan() {
		line := c.in.Text()
		if line == "" {
			continue
		}
		msg := channelbus.ChannelMessage{Channel: c.Name(), Sender: c.sender, Content: line}
		select {
		case sender <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := c.in.Err(); err != nil {
		return fmt.Errorf("channels.cli: read stdin: %w", err)
	}
	return io.EOF
}

func (c *CLI) Send(ctx context.Context, recipient, text string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", recipient, text)
	return err
}
