package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/logging"
)

var errInvalidInferenceRequest = apperr.New("gateway.inference", apperr.KindValidation, "BAD_REQUEST", "invalid inference request body", nil)

// InferenceMode selects how ParallelInference combines provider results
// (spec §4.15).
type InferenceMode string

const (
	ModeMergeAll     InferenceMode = "merge_all"
	ModeFirstSuccess InferenceMode = "first_success"
)

// ProviderCaller invokes a single upstream provider for prompt under
// ctx, returning its raw response text.
type ProviderCaller func(ctx context.Context, provider, prompt string) (string, error)

// ProviderResult is one provider's outcome, order-preserving against the
// request's provider list (spec §4.15).
type ProviderResult struct {
	Provider string `json:"provider"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// InferenceRouter fans a single prompt out to multiple providers
// concurrently under a shared cancellation budget (spec §4.15).
type InferenceRouter struct {
	call   ProviderCaller
	logger logging.Logger
}

func NewInferenceRouter(call ProviderCaller) *InferenceRouter {
	return &InferenceRouter{call: call, logger: &logging.NoOpLogger{}}
}

// InferenceRequest is the body of a parallel-inference call.
type InferenceRequest struct {
	Prompt    string        `json:"prompt"`
	Providers []string      `json:"providers"`
	Mode      InferenceMode `json:"mode"`
}

// Run executes req.Providers concurrently against req.Prompt. In
// ModeMergeAll every result is returned, success or error, in input
// order. In ModeFirstSuccess the first provider to succeed short-
// circuits the rest via ctx cancellation; if all fail, every error is
// still returned in input order.
func (r *InferenceRouter) Run(ctx context.Context, req InferenceRequest) ([]ProviderResult, error) {
	results := make([]ProviderResult, len(req.Providers))

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(groupCtx)

	for i, provider := range req.Providers {
		i, provider := i, provider
		g.Go(func() error {
			resp, err := r.call(gctx, provider, req.Prompt)
			if err != nil {
				results[i] = ProviderResult{Provider: provider, Error: err.Error()}
				return nil
			}
			results[i] = ProviderResult{Provider: provider, Response: resp}
			if req.Mode == ModeFirstSuccess {
				cancel()
			}
			return nil
		})
	}

	// errgroup's returned error is always nil here: each goroutine
	// records its own failure into results rather than aborting the
	// group, so every provider gets a slot regardless of the others.
	_ = g.Wait()

	return results, nil
}

// HandleInference is the HTTP handler for POST /api/v1/inference.
func (r *InferenceRouter) HandleInference(w http.ResponseWriter, req *http.Request) {
	var body InferenceRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, errInvalidInferenceRequest)
		return
	}
	if body.Mode == "" {
		body.Mode = ModeMergeAll
	}

	results, err := r.Run(req.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "results": results})
}
