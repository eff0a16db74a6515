// Package approval implements the Human-in-the-Loop approval engine: a
// durable store for approval requests, an append-only audit log, and the
// HTTP surface that orchestrates them with per-channel card renderers.
package approval

import (
	"encoding/json"
	"time"
)

// Status tags the lifecycle of a Request. Only StatusPending is
// non-terminal; every other value is a terminal state that may never
// transition again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// RiskLevel classifies how dangerous an operation is, used by the
// Auto-Approver (internal/autoapprove) and carried on ToolExecution
// and RiskOperation approval types.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ApprovalTypeKind discriminates the variant carried in Request.ApprovalType.
type ApprovalTypeKind string

const (
	TypeMergeRequest      ApprovalTypeKind = "merge_request"
	TypeTradingCommand    ApprovalTypeKind = "trading_command"
	TypeConfigChange      ApprovalTypeKind = "config_change"
	TypeHighCostOperation ApprovalTypeKind = "high_cost_operation"
	TypeRiskOperation     ApprovalTypeKind = "risk_operation"
	TypeToolExecution     ApprovalTypeKind = "tool_execution"
)

// ApprovalType is a tagged-union payload (spec §3.2). Kind selects which
// of the optional fields is populated; the rest are zero.
type ApprovalType struct {
	Kind ApprovalTypeKind `json:"kind"`

	// MergeRequest
	Platform string `json:"platform,omitempty"`
	Repo     string `json:"repo,omitempty"`
	MRID     string `json:"mr_id,omitempty"`

	// TradingCommand
	Asset  string  `json:"asset,omitempty"`
	Action string  `json:"action,omitempty"`
	Amount float64 `json:"amount,omitempty"`

	// ConfigChange
	Key      string `json:"key,omitempty"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`

	// HighCostOperation
	Operation     string  `json:"operation,omitempty"`
	EstimatedCost float64 `json:"estimated_cost,omitempty"`

	// RiskOperation
	Description string    `json:"description,omitempty"`
	RiskLevel   RiskLevel `json:"risk_level,omitempty"`

	// ToolExecution
	Tool        string          `json:"tool,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	HandID      string          `json:"hand_id,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"`
}

// Request is an approval request (spec §3.1).
type Request struct {
	ID           string          `json:"id"`
	ApprovalType ApprovalType    `json:"approval_type"`
	Status       Status          `json:"status"`
	Requester    string          `json:"requester"`
	Approvers    []string        `json:"approvers"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Channel      string          `json:"channel"`
	MessageID    string          `json:"message_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`

	DecidedBy        string `json:"decided_by,omitempty"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
	RejectionReason  string `json:"rejection_reason,omitempty"`
	CancelledReason  string `json:"cancelled_reason,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsTerminal reports whether the request can no longer change status.
func (r *Request) IsTerminal() bool {
	return r.Status != StatusPending
}

// HasApprover reports whether id is authorized to decide this request.
func (r *Request) HasApprover(id string) bool {
	for _, a := range r.Approvers {
		if a == id {
			return true
		}
	}
	return false
}

// AuditAction enumerates the audit-log action names (spec §3.3).
type AuditAction string

const (
	ActionCreated      AuditAction = "created"
	ActionApproved     AuditAction = "approved"
	ActionRejected     AuditAction = "rejected"
	ActionCancelled    AuditAction = "cancelled"
	ActionMessageSent  AuditAction = "message_sent"
)

// AuditEntry is a single append-only audit record (spec §3.3).
type AuditEntry struct {
	ID        int64           `json:"id"`
	RequestID string          `json:"request_id"`
	Action    AuditAction     `json:"action"`
	ActorID   string          `json:"actor_id"`
	Details   json.RawMessage `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecideRequest is the body of POST /:id/decide.
type DecideRequest struct {
	DecidedBy string `json:"decided_by"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
}

// CallbackAction is the action token a Card Renderer extracts from a
// platform callback payload (spec §4.2).
type CallbackAction string

const (
	CallbackApprove CallbackAction = "approve"
	CallbackReject  CallbackAction = "reject"
)

// CallbackData is the parsed result of a renderer's ParseCallback (spec §4.2).
type CallbackData struct {
	RequestID          string
	Action             CallbackAction
	Reason             string
	UserID             string
	PlatformCallbackID string
}
