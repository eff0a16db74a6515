package autoapprove

import (
	"encoding/json"
	"path/filepath"

	"github.com/zero-bot/codecoder/internal/approval"
)

// Decision is the tagged outcome of evaluating a ToolExecution (spec §4.4).
type Decision string

const (
	DecisionAutoApprove Decision = "auto_approve"
	DecisionQueue       Decision = "queue"
	DecisionReject      Decision = "reject"
)

// Result is the Risk Evaluator's output (spec §4.4).
type Result struct {
	Decision         Decision            `json:"decision"`
	Reasons          []string            `json:"reasons"`
	RiskEvaluation   approval.RiskLevel  `json:"risk_evaluation"`
	TimeoutMs        int64               `json:"timeout_ms,omitempty"`
	TimeoutApplicable bool               `json:"timeout_applicable"`
}

// Evaluator classifies ToolExecution invocations. It is pure: no I/O, no
// hidden state beyond the immutable Policy it was built with.
type Evaluator struct {
	policy *Policy
}

func NewEvaluator(policy *Policy) *Evaluator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Evaluator{policy: policy}
}

// Evaluate computes an ApprovalResult for invoking tool with args (an
// opaque JSON structure).
func (e *Evaluator) Evaluate(tool string, args json.RawMessage) *Result {
	risk := e.riskLevel(tool, args)

	if e.isRejected(tool) {
		return &Result{
			Decision:       DecisionReject,
			Reasons:        []string{"tool is explicitly forbidden by policy"},
			RiskEvaluation: risk,
		}
	}

	whitelisted := e.isWhitelisted(tool, args)

	if whitelisted && risk != approval.RiskCritical {
		return &Result{
			Decision:       DecisionAutoApprove,
			Reasons:        []string{"tool and arguments match an auto-approve pattern"},
			RiskEvaluation: risk,
		}
	}

	result := &Result{
		Decision:       DecisionQueue,
		RiskEvaluation: risk,
	}
	if whitelisted {
		result.Reasons = []string{"matched an auto-approve pattern but risk level is critical"}
	} else {
		result.Reasons = []string{"no auto-approve rule matched; routed to a human approver"}
	}

	// Critical operations are never timeout-approved, regardless of
	// the unattended flag (spec §4.4).
	if e.policy.Unattended && risk != approval.RiskCritical {
		result.TimeoutApplicable = true
		result.TimeoutMs = e.policy.TimeoutMsByRisk[risk]
	}

	return result
}

func (e *Evaluator) riskLevel(tool string, _ json.RawMessage) approval.RiskLevel {
	if level, ok := e.policy.RiskRules[tool]; ok {
		return level
	}
	return e.policy.DefaultRisk
}

func (e *Evaluator) isRejected(tool string) bool {
	for _, t := range e.policy.Reject {
		if t == tool {
			return true
		}
	}
	return false
}

func (e *Evaluator) isWhitelisted(tool string, args json.RawMessage) bool {
	patterns, ok := e.policy.AutoApprove[tool]
	if !ok {
		return false
	}
	// An empty pattern list whitelists the tool unconditionally.
	if len(patterns) == 0 {
		return true
	}

	argsStr := string(args)
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, argsStr); err == nil && matched {
			return true
		}
	}
	return false
}
