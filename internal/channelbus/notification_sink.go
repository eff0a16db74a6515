package channelbus

import (
	"context"
	"fmt"

	"github.com/zero-bot/codecoder/internal/logging"
)

// ConfirmationCardSender is implemented by channels that can render an
// interactive inline-button confirmation card, detected by capability
// rather than by channel name (spec §4.9).
type ConfirmationCardSender interface {
	InteractiveChannel
	SendConfirmationCard(ctx context.Context, recipient, requestID, permissionLabel string) error
}

// NotificationSink routes outbound notifications and confirmation
// requests to a registered channel by name (spec §4.9).
type NotificationSink struct {
	bus    *Bus
	logger logging.Logger
}

// NotificationSinkOption configures optional NotificationSink
// dependencies.
type NotificationSinkOption func(*NotificationSink)

func WithSinkLogger(logger logging.Logger) NotificationSinkOption {
	return func(s *NotificationSink) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("channelbus.sink")
		} else {
			s.logger = logger
		}
	}
}

func NewNotificationSink(bus *Bus, opts ...NotificationSinkOption) *NotificationSink {
	s := &NotificationSink{bus: bus, logger: &logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendNotification looks up channel by name and delegates text to userID.
func (s *NotificationSink) SendNotification(ctx context.Context, channel, userID, text string) error {
	ch, ok := s.bus.Lookup(channel)
	if !ok {
		return fmt.Errorf("channelbus: unknown channel %q", channel)
	}
	return ch.Send(ctx, userID, text)
}

// SendConfirmationRequest renders an inline-button confirmation when the
// target channel supports it, otherwise falls back to a plain-text
// instruction naming requestID (spec §4.9).
func (s *NotificationSink) SendConfirmationRequest(ctx context.Context, channel, userID, requestID, permissionLabel string) error {
	ch, ok := s.bus.Lookup(channel)
	if !ok {
		return fmt.Errorf("channelbus: unknown channel %q", channel)
	}

	if sender, ok := ch.(ConfirmationCardSender); ok && sender.SupportsInlineButtons() {
		return sender.SendConfirmationCard(ctx, userID, requestID, permissionLabel)
	}

	text := fmt.Sprintf(
		"Confirmation requested: %s\nReply \"approve %s\" or \"reject %s\"",
		permissionLabel, requestID, requestID,
	)
	return ch.Send(ctx, userID, text)
}

// UpdateConfirmationResult sends a brief status line to userID after a
// confirmation has been decided.
func (s *NotificationSink) UpdateConfirmationResult(ctx context.Context, channel, userID, requestID string, response ConfirmationResponse) error {
	ch, ok := s.bus.Lookup(channel)
	if !ok {
		return fmt.Errorf("channelbus: unknown channel %q", channel)
	}

	var status string
	switch response {
	case ResponseOnce:
		status = "approved (once)"
	case ResponseAlways:
		status = "approved (always)"
	case ResponseReject:
		status = "rejected"
	default:
		status = string(response)
	}

	text := fmt.Sprintf("Request %s: %s", requestID, status)
	return ch.Send(ctx, userID, text)
}
