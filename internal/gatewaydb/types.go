// Package gatewaydb implements the User & Quota Store (spec §3.4, §4.13):
// user CRUD backed by sqlite, bcrypt password hashing, and per-user quota
// limits with daily/monthly usage counters.
package gatewaydb

import "time"

// User is a gateway account (spec §3.4).
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Roles        []string   `json:"roles"`
	Enabled      bool       `json:"enabled"`
	Email        string     `json:"email,omitempty"`
	DisplayName  string     `json:"display_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// HasRole reports whether u carries role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// QuotaLimits bounds a user's token and request consumption (spec §3.4).
type QuotaLimits struct {
	DailyInputTokens    int64 `json:"daily_input_tokens"`
	DailyOutputTokens   int64 `json:"daily_output_tokens"`
	DailyRequests       int64 `json:"daily_requests"`
	MonthlyInputTokens  int64 `json:"monthly_input_tokens"`
	MonthlyOutputTokens int64 `json:"monthly_output_tokens"`
}

// DefaultQuotaLimits is the template applied to every new user
// (spec §4.13).
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		DailyInputTokens:    200_000,
		DailyOutputTokens:   50_000,
		DailyRequests:       500,
		MonthlyInputTokens:  4_000_000,
		MonthlyOutputTokens: 1_000_000,
	}
}

// UsageCounters is the running total for one (user, window) key.
type UsageCounters struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	Requests     int64 `json:"requests"`
}

// UserUpdate carries the mutable subset of a User. Nil fields are left
// unchanged. Role and Enabled changes are gated by the caller (gateway
// RBAC layer), never by self-service carve-outs (spec §4.13).
type UserUpdate struct {
	Email       *string
	DisplayName *string
	Roles       []string
	Enabled     *bool
}

// dailyKey formats the (user_id, YYYY-MM-DD) key spec §4.13 describes.
func dailyKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// monthlyKey formats the (user_id, YYYY-MM) key spec §4.13 describes.
func monthlyKey(t time.Time) string { return t.UTC().Format("2006-01") }
