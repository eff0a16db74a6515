// Package autoapprove implements the Auto-Approver + Risk Evaluator
// (spec §4.4): a pure, deterministic classifier that decides whether a
// ToolExecution proceeds unattended, queues for human approval, or is
// rejected outright.
package autoapprove

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zero-bot/codecoder/internal/approval"
)

// AutonomyLevel mirrors internal/config.AutonomyLevel; kept distinct to
// avoid a dependency from config into this policy-evaluation package.
type AutonomyLevel string

const (
	LevelReadOnly   AutonomyLevel = "ReadOnly"
	LevelSupervised AutonomyLevel = "Supervised"
	LevelFull       AutonomyLevel = "Full"
)

// Policy is the operator-authored bundle driving risk evaluation,
// YAML-tagged in the same shape as the teacher's WorkflowHITLConfig /
// StepApprovalConfig structs.
type Policy struct {
	Level      AutonomyLevel `yaml:"level"`
	Unattended bool          `yaml:"unattended"`

	// AutoApprove maps a tool name to a list of glob/regex patterns
	// matched against the tool's arguments; a match permits
	// auto-approval for that tool when risk isn't Critical.
	AutoApprove map[string][]string `yaml:"auto_approve"`

	// Reject lists tool names explicitly forbidden regardless of risk.
	Reject []string `yaml:"reject"`

	// RiskRules assigns a risk level to specific tools; tools absent
	// from this map fall back to DefaultRisk.
	RiskRules map[string]approval.RiskLevel `yaml:"risk_rules"`

	DefaultRisk approval.RiskLevel `yaml:"default_risk"`

	// TimeoutMsByRisk gives the unattended auto-approval timeout per
	// risk level; Critical is never present here (spec §4.4: Critical
	// operations are never timeout-approved).
	TimeoutMsByRisk map[approval.RiskLevel]int64 `yaml:"timeout_ms_by_risk"`
}

// DefaultPolicy returns a conservative policy: nothing is auto-approved,
// unattended timeouts are disabled, and the default risk is Medium.
func DefaultPolicy() *Policy {
	return &Policy{
		Level:           LevelSupervised,
		Unattended:      false,
		AutoApprove:     map[string][]string{},
		RiskRules:       map[string]approval.RiskLevel{},
		DefaultRisk:     approval.RiskMedium,
		TimeoutMsByRisk: map[approval.RiskLevel]int64{
			approval.RiskSafe:   5_000,
			approval.RiskLow:    30_000,
			approval.RiskMedium: 120_000,
			approval.RiskHigh:   300_000,
		},
	}
}

// LoadPolicy reads a YAML policy bundle from path, filling unset fields
// from DefaultPolicy.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}
