// Package hand implements the Hand Executor (spec §4.5): the consumer
// side of the HitL engine used by an autonomous task executor before it
// runs a tool.
package hand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/approval"
	"github.com/zero-bot/codecoder/internal/autoapprove"
	"github.com/zero-bot/codecoder/internal/logging"
	"github.com/zero-bot/codecoder/internal/resilience"
)

// absoluteSafetyCap bounds every poll loop regardless of configuration
// (spec §4.5, §5).
const absoluteSafetyCap = time.Hour

const pollInterval = 2 * time.Second

// ErrRejectedByPolicy is returned when the Risk Evaluator rejects a tool
// call outright.
var ErrRejectedByPolicy = apperr.New("hand.execute", apperr.KindPolicy, "POLICY_REJECTED", "tool call rejected by auto-approval policy", apperr.ErrBlocked)

// ErrRejectedByHuman is returned when a queued request is terminally
// rejected or cancelled by a human approver.
var ErrRejectedByHuman = apperr.New("hand.execute", apperr.KindPolicy, "HUMAN_REJECTED", "tool call rejected by human approver", apperr.ErrBlocked)

// ErrTimedOut is returned when a Critical (or otherwise non-unattended)
// request hits the absolute safety cap without a decision.
var ErrTimedOut = apperr.New("hand.execute", apperr.KindCapacity, "APPROVAL_TIMEOUT", "approval request timed out waiting for a decision", nil)

// Executor calls a HitL Service over HTTP to gate tool execution behind
// human (or auto-) approval.
type Executor struct {
	baseURL   string
	evaluator *autoapprove.Evaluator
	client    *http.Client
	breaker   *resilience.CircuitBreaker
	retry     *resilience.RetryConfig
	logger    logging.Logger
}

// ExecutorOption configures optional Executor dependencies.
type ExecutorOption func(*Executor)

func WithExecutorLogger(logger logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			e.logger = cal.WithComponent("hand")
		} else {
			e.logger = logger
		}
	}
}

func WithExecutorHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = client }
}

// NewExecutor builds an Executor. baseURL is the HitL service's
// `/api/v1/hitl` prefix.
func NewExecutor(baseURL string, evaluator *autoapprove.Evaluator, opts ...ExecutorOption) (*Executor, error) {
	cb, err := resilience.NewCircuitBreaker(resilience.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("build circuit breaker: %w", err)
	}

	e := &Executor{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		evaluator: evaluator,
		client:    &http.Client{Timeout: 15 * time.Second},
		breaker:   cb,
		retry:     resilience.DefaultRetryConfig(),
		logger:    &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ToolCall describes an invocation the Hand wants to run.
type ToolCall struct {
	Tool        string
	Args        json.RawMessage
	HandID      string
	ExecutionID string
	Requester   string
	Approvers   []string
	Channel     string
	ChannelID   string
	Title       string
	Description string
}

// Run gates tc behind the Risk Evaluator and, if queued, the HitL
// service, blocking until an approved/rejected/timed-out outcome.
func (e *Executor) Run(ctx context.Context) func(tc ToolCall) error {
	return func(tc ToolCall) error { return e.Execute(ctx, tc) }
}

// Execute implements the five-step flow of spec §4.5.
func (e *Executor) Execute(ctx context.Context, tc ToolCall) error {
	result := e.evaluator.Evaluate(tc.Tool, tc.Args)

	switch result.Decision {
	case autoapprove.DecisionAutoApprove:
		return nil
	case autoapprove.DecisionReject:
		return ErrRejectedByPolicy
	}

	req, err := e.createRequest(ctx, tc)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(absoluteSafetyCap)
	unattendedTimeout := result.TimeoutApplicable
	var unattendedDeadline time.Time
	if unattendedTimeout {
		unattendedDeadline = time.Now().Add(time.Duration(result.TimeoutMs) * time.Millisecond)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return ErrTimedOut
		}

		if unattendedTimeout && time.Now().After(unattendedDeadline) {
			e.logger.InfoWithContext(ctx, "unattended timeout elapsed, treating as auto-approved", map[string]interface{}{
				"operation": "hand_execute", "request_id": req.ID,
			})
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := e.poll(ctx, req.ID)
		if err != nil {
			if isPermanent(err) {
				return err
			}
			// Transient transport errors keep polling (spec §4.5).
			continue
		}

		switch current.Status {
		case approval.StatusApproved:
			return nil
		case approval.StatusRejected, approval.StatusCancelled:
			return ErrRejectedByHuman
		case approval.StatusPending:
			continue
		}
	}
}

func (e *Executor) createRequest(ctx context.Context, tc ToolCall) (*approval.Request, error) {
	body := approval.CreateRequest{
		ApprovalType: approval.ApprovalType{
			Kind:        approval.TypeToolExecution,
			Tool:        tc.Tool,
			Args:        tc.Args,
			HandID:      tc.HandID,
			ExecutionID: tc.ExecutionID,
		},
		Requester: tc.Requester,
		Approvers: tc.Approvers,
		Title:     tc.Title,
		Description: tc.Description,
		Channel:   tc.Channel,
		ChannelID: tc.ChannelID,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}

	var req approval.Request
	err = resilience.RetryWithCircuitBreaker(ctx, e.retry, e.breaker, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/request", bytes.NewReader(raw))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			return permanentError{fmt.Errorf("hitl request failed with status %d", resp.StatusCode)}
		}
		return json.NewDecoder(resp.Body).Decode(&req)
	})
	if err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}
	return &req, nil
}

func (e *Executor) poll(ctx context.Context, id string) (*approval.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, permanentError{apperr.ErrNotFound}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, permanentError{fmt.Errorf("hitl poll failed with status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("hitl poll transient failure: status %d", resp.StatusCode)
	}

	var req approval.Request
	if err := json.NewDecoder(resp.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// permanentError marks an error as non-retriable: a 4xx status other
// than what transient polling should absorb (spec §4.5).
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func isPermanent(err error) bool {
	_, ok := err.(permanentError)
	return ok
}
