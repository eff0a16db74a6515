// Package channelbus implements the Channel Fan-in/Supervised Listener
// core (spec §4.6–§4.10): a supervised restart loop per channel
// listener, a single fan-in bus that consolidates inbound messages, an
// in-memory confirmation registry for inline-button approvals, a
// notification sink that routes outbound sends to the right channel,
// and a disk-persisted retry queue for failed notifications.
package channelbus

import "context"

// Channel is the capability a communication platform (Telegram, Discord,
// Slack, Feishu, Matrix, WhatsApp, iMessage, CLI) exposes to the bus.
type Channel interface {
	// Name is the registered identifier used to route replies and
	// notifications (e.g. "telegram", "slack").
	Name() string

	// Listen blocks, pushing inbound messages onto sender, until ctx is
	// cancelled or the platform connection fails. A nil return with no
	// cancellation is itself an unexpected exit the supervisor restarts.
	Listen(ctx context.Context, sender chan<- ChannelMessage) error

	// Send delivers text to recipient on this channel.
	Send(ctx context.Context, recipient, text string) error
}

// InteractiveChannel is implemented by channels that can render inline
// buttons for confirmations (spec §4.8, §4.9). Channels that only
// support plain text do not implement it.
type InteractiveChannel interface {
	Channel
	SupportsInlineButtons() bool
}

// ChannelMessage is a single inbound message delegated to the agent
// pipeline by the fan-in bus (spec §4.7).
type ChannelMessage struct {
	Channel string
	Sender  string
	Content string
}

// HealthStatus is the outcome of a per-channel health check (spec §5).
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthTimeout   HealthStatus = "timeout"
	HealthError     HealthStatus = "error"
)
