// Package resilience implements the circuit breaker and retry helpers
// the Hand Executor uses to call the HitL service (spec §4.5), adapted
// from the teacher's production circuit breaker down to its core
// three-state machine (closed/open/half-open) driven by an error-rate
// threshold over a minimum request volume, dropping the sliding-window
// bucket tracking, metrics-collector hooks, and panic-recovery goroutine
// wrapping the full framework version adds for multi-tenant agent tools.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by CanExecute when the breaker is rejecting
// calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name string

	// ErrorThreshold is the failure rate (0.0-1.0) that trips the
	// breaker once VolumeThreshold requests have been observed.
	ErrorThreshold float64

	// VolumeThreshold is the minimum number of requests in the current
	// window before the error rate is evaluated.
	VolumeThreshold int

	// SleepWindow is how long the breaker stays open before allowing a
	// half-open trial request.
	SleepWindow time.Duration

	// HalfOpenRequests is the number of consecutive successes required
	// in half-open state to close the breaker again.
	HalfOpenRequests int
}

// DefaultConfig returns production-sensible defaults.
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// CircuitBreaker guards a single logical upstream call.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	stateChangedAt time.Time
	requests       int
	failures       int
	halfOpenOK     int32
}

// NewCircuitBreaker validates config (falling back to DefaultConfig when
// nil) and returns a breaker starting in the closed state.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ErrorThreshold <= 0 || config.ErrorThreshold > 1 {
		return nil, fmt.Errorf("invalid circuit breaker config: error threshold must be in (0, 1], got %v", config.ErrorThreshold)
	}
	if config.VolumeThreshold <= 0 {
		return nil, fmt.Errorf("invalid circuit breaker config: volume threshold must be positive, got %d", config.VolumeThreshold)
	}
	if config.SleepWindow <= 0 {
		config.SleepWindow = 30 * time.Second
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 3
	}

	return &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		stateChangedAt: time.Now(),
	}, nil
}

// State reports the breaker's current state, promoting open→half-open
// once the sleep window has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeEnterHalfOpenLocked()
	return cb.state
}

// CanExecute reports whether the caller may attempt the protected call.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeEnterHalfOpenLocked()
	return cb.state != StateOpen
}

// RecordSuccess reports a successful call, closing the breaker from
// half-open once enough consecutive successes have been seen.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		if int(atomic.AddInt32(&cb.halfOpenOK, 1)) >= cb.config.HalfOpenRequests {
			cb.transitionLocked(StateClosed)
			cb.requests, cb.failures = 0, 0
		}
	case StateClosed:
		cb.requests++
	}
}

// RecordFailure reports a failed call, tripping the breaker open once
// the error rate crosses ErrorThreshold over VolumeThreshold requests,
// or immediately re-opening from half-open.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
		return
	case StateClosed:
		cb.requests++
		cb.failures++
		if cb.requests >= cb.config.VolumeThreshold &&
			float64(cb.failures)/float64(cb.requests) >= cb.config.ErrorThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) maybeEnterHalfOpenLocked() {
	if cb.state == StateOpen && time.Since(cb.stateChangedAt) >= cb.config.SleepWindow {
		cb.transitionLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	cb.state = to
	cb.stateChangedAt = time.Now()
	if to == StateHalfOpen {
		atomic.StoreInt32(&cb.halfOpenOK, 0)
	}
}

// Execute runs fn under the breaker's protection, recording success or
// failure and translating a rejected call into ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return fmt.Errorf("circuit breaker %q is open: %w", cb.config.Name, ErrCircuitOpen)
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
