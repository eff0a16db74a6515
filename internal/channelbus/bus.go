package channelbus

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/zero-bot/codecoder/internal/logging"
)

// ErrSenderClosed signals that the fan-in bus's receiver is gone; a
// Channel implementation should return it from Listen when a blocked
// send discovers the channel was closed underneath it.
var ErrSenderClosed = errors.New("channelbus: sender closed")

// DefaultCapacity is the fan-in bus's default bounded capacity (spec §5).
const DefaultCapacity = 100

// Dispatcher is the single consumer of ChannelMessage values pulled off
// the bus: the agent pipeline. ReplyTo lets the bus route a generated
// reply back to the originating channel/recipient.
type Dispatcher func(ctx context.Context, msg ChannelMessage, reply func(text string) error)

// ControlHandler intercepts a special control command (/new, /compact)
// before it reaches the Dispatcher (spec §4.7).
type ControlHandler func(ctx context.Context, channel, sender string) error

// Bus is the single bounded MPSC channel every registered Channel's
// SupervisedListener feeds (spec §4.7). There is exactly one receiver
// loop per process.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]Channel
	sender   chan ChannelMessage

	onNew     ControlHandler
	onCompact ControlHandler

	logger logging.Logger
}

// BusOption configures optional Bus dependencies.
type BusOption func(*Bus)

func WithCapacity(n int) BusOption {
	return func(b *Bus) { b.sender = make(chan ChannelMessage, n) }
}

func WithBusLogger(logger logging.Logger) BusOption {
	return func(b *Bus) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			b.logger = cal.WithComponent("channelbus.bus")
		} else {
			b.logger = logger
		}
	}
}

func WithControlHandlers(onNew, onCompact ControlHandler) BusOption {
	return func(b *Bus) {
		b.onNew = onNew
		b.onCompact = onCompact
	}
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		channels: make(map[string]Channel),
		sender:   make(chan ChannelMessage, DefaultCapacity),
		logger:   &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a Channel to the registry consulted when routing
// replies and notifications; it does not by itself start a listener.
func (b *Bus) Register(ch Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[ch.Name()] = ch
}

// Lookup returns the registered Channel by name.
func (b *Bus) Lookup(name string) (Channel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.channels[name]
	return ch, ok
}

// Sender exposes the bounded channel SupervisedListeners push onto.
func (b *Bus) Sender() chan<- ChannelMessage { return b.sender }

// Run is the sole receiver loop: it consumes ChannelMessage values,
// handles the /new and /compact control commands, and otherwise
// delegates to dispatch. It returns when ctx is cancelled.
func (b *Bus) Run(ctx context.Context, dispatch Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.sender:
			if !ok {
				return
			}
			b.handle(ctx, msg, dispatch)
		}
	}
}

func (b *Bus) handle(ctx context.Context, msg ChannelMessage, dispatch Dispatcher) {
	content := strings.TrimSpace(msg.Content)
	switch content {
	case "/new":
		if b.onNew != nil {
			if err := b.onNew(ctx, msg.Channel, msg.Sender); err != nil {
				b.logger.ErrorWithContext(ctx, "control command failed", map[string]interface{}{
					"operation": "bus_control", "command": "/new", "error": err.Error(),
				})
			}
		}
		return
	case "/compact":
		if b.onCompact != nil {
			if err := b.onCompact(ctx, msg.Channel, msg.Sender); err != nil {
				b.logger.ErrorWithContext(ctx, "control command failed", map[string]interface{}{
					"operation": "bus_control", "command": "/compact", "error": err.Error(),
				})
			}
		}
		return
	}

	reply := func(text string) error {
		ch, ok := b.Lookup(msg.Channel)
		if !ok {
			return errors.New("channelbus: unknown reply channel " + msg.Channel)
		}
		return ch.Send(ctx, msg.Sender, text)
	}

	dispatch(ctx, msg, reply)
}
