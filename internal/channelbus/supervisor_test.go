package channelbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeChannel struct {
	name    string
	calls   atomic.Int32
	results []error
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Listen(ctx context.Context, sender chan<- ChannelMessage) error {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.results) {
		return f.results[n]
	}
	return f.results[len(f.results)-1]
}

func (f *fakeChannel) Send(ctx context.Context, recipient, text string) error { return nil }

type recordingHealth struct {
	transitions []HealthStatus
}

func (r *recordingHealth) ReportHealth(channel string, status HealthStatus) {
	r.transitions = append(r.transitions, status)
}

func TestSupervisedListener_RestartsOnFailureWithBackoff(t *testing.T) {
	ch := &fakeChannel{name: "telegram", results: []error{errors.New("boom"), errors.New("boom"), nil}}
	health := &recordingHealth{}

	listener := NewSupervisedListener(ch,
		WithSupervisorConfig(SupervisorConfig{InitialBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}),
		WithHealthReporter(health),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	sender := make(chan ChannelMessage, 1)
	listener.Run(ctx, sender)

	assert.GreaterOrEqual(t, listener.Restarts(), 2)
	assert.Contains(t, health.transitions, HealthHealthy)
	assert.Contains(t, health.transitions, HealthError)
}

func TestSupervisedListener_SenderClosedExitsCleanly(t *testing.T) {
	ch := &fakeChannel{name: "telegram", results: []error{ErrSenderClosed}}
	listener := NewSupervisedListener(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	sender := make(chan ChannelMessage, 1)

	done := make(chan struct{})
	go func() {
		listener.Run(ctx, sender)
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, 0, listener.Restarts())
	case <-time.After(time.Second):
		t.Fatal("listener did not exit on ErrSenderClosed")
	}
}

func TestSupervisedListener_ContextCancelExitsCleanly(t *testing.T) {
	ch := &fakeChannel{name: "telegram", results: []error{errors.New("boom")}}
	listener := NewSupervisedListener(ch,
		WithSupervisorConfig(SupervisorConfig{InitialBackoff: time.Minute, MaxBackoff: time.Minute}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	sender := make(chan ChannelMessage, 1)

	done := make(chan struct{})
	go func() {
		listener.Run(ctx, sender)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not exit on context cancel")
	}
}
