package channelbus

import (
	"context"
	"time"

	"github.com/zero-bot/codecoder/internal/logging"
)

// SupervisorConfig configures the backoff schedule of a SupervisedListener
// (spec §4.6).
type SupervisorConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultSupervisorConfig matches the spec's documented defaults: start
// 2s, cap 60s.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{InitialBackoff: 2 * time.Second, MaxBackoff: 60 * time.Second}
}

// HealthReporter receives component health transitions as the supervisor
// observes them. Implementations must be safe for concurrent use from a
// single caller (the supervisor calls it sequentially for one channel).
type HealthReporter interface {
	ReportHealth(channel string, status HealthStatus)
}

// NoopHealthReporter discards health transitions.
type NoopHealthReporter struct{}

func (NoopHealthReporter) ReportHealth(string, HealthStatus) {}

// SupervisedListener restarts a Channel's Listen loop with doubling
// backoff whenever it exits unexpectedly, until the outbound sender is
// closed or the context is cancelled (spec §4.6). The restart shape is
// grounded on a channel manager's per-platform retry goroutine: mark
// healthy, attempt, back off on failure, double the delay to a cap.
type SupervisedListener struct {
	channel  Channel
	cfg      SupervisorConfig
	health   HealthReporter
	logger   logging.Logger
	restarts int
}

// SupervisedListenerOption configures optional SupervisedListener
// dependencies.
type SupervisedListenerOption func(*SupervisedListener)

func WithSupervisorConfig(cfg SupervisorConfig) SupervisedListenerOption {
	return func(s *SupervisedListener) { s.cfg = cfg }
}

func WithHealthReporter(h HealthReporter) SupervisedListenerOption {
	return func(s *SupervisedListener) {
		if h != nil {
			s.health = h
		}
	}
}

func WithSupervisorLogger(logger logging.Logger) SupervisedListenerOption {
	return func(s *SupervisedListener) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("channelbus.supervisor")
		} else {
			s.logger = logger
		}
	}
}

func NewSupervisedListener(channel Channel, opts ...SupervisedListenerOption) *SupervisedListener {
	s := &SupervisedListener{
		channel: channel,
		cfg:     DefaultSupervisorConfig(),
		health:  NoopHealthReporter{},
		logger:  &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restarts reports how many times Listen has been retried so far.
func (s *SupervisedListener) Restarts() int { return s.restarts }

// Run drives the supervised loop described in spec §4.6. It returns when
// ctx is cancelled or sender is observed closed by the channel
// implementation (signalled by ErrSenderClosed).
func (s *SupervisedListener) Run(ctx context.Context, sender chan<- ChannelMessage) {
	backoff := s.cfg.InitialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		// The mark precedes listen: a fresh attempt starts healthy.
		s.health.ReportHealth(s.channel.Name(), HealthHealthy)

		err := s.channel.Listen(ctx, sender)

		if ctx.Err() != nil {
			return
		}
		if err == ErrSenderClosed {
			return
		}

		// Ok (unexpected exit) or Err both restart with backoff.
		s.health.ReportHealth(s.channel.Name(), HealthError)
		s.restarts++
		s.logger.WarnWithContext(ctx, "channel listener exited, restarting after backoff", map[string]interface{}{
			"operation": "supervised_listen",
			"channel":   s.channel.Name(),
			"restarts":  s.restarts,
			"backoff":   backoff.String(),
			"error":     errString(err),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
