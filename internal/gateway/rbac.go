package gateway

import (
	"net/http"

	"github.com/zero-bot/codecoder/internal/apperr"
)

// Capability is one unit of the fixed authorization enumeration role
// membership maps to (spec §4.13).
type Capability string

const (
	CapUserRead    Capability = "user:read"
	CapUserWrite   Capability = "user:write"
	CapUserAdmin   Capability = "user:admin"
	CapAuditRead   Capability = "audit:read"
	CapProxyUse    Capability = "proxy:use"
	CapInferenceUse Capability = "inference:use"
)

// roleCapabilities is the fixed role -> capability-set mapping. Roles
// not present here carry no capabilities.
var roleCapabilities = map[string][]Capability{
	"admin": {CapUserRead, CapUserWrite, CapUserAdmin, CapAuditRead, CapProxyUse, CapInferenceUse},
	"user":  {CapUserRead, CapProxyUse, CapInferenceUse},
	"auditor": {CapAuditRead},
}

// capabilitiesFor flattens roles into their union of capabilities.
func capabilitiesFor(roles []string) map[Capability]bool {
	caps := make(map[Capability]bool)
	for _, role := range roles {
		for _, cap := range roleCapabilities[role] {
			caps[cap] = true
		}
	}
	return caps
}

// HasCapability reports whether any of roles grants cap.
func HasCapability(roles []string, cap Capability) bool {
	return capabilitiesFor(roles)[cap]
}

var ErrForbidden = apperr.New("gateway.rbac", apperr.KindAuthorization, "FORBIDDEN", "insufficient permissions", apperr.ErrUnauthorized)

// RequireCapability wraps next, rejecting requests whose AuthUser (set
// by the Verify middleware) lacks cap, unless the request targets the
// caller's own resource and allowSelf is true. Self-access never carves
// out role changes, the enabled flag, or self-delete (spec §4.13); pass
// allowSelf=false for those endpoints regardless of the resource owner.
func RequireCapability(cap Capability, allowSelf bool, resourceUserID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := AuthUserFromContext(r.Context())
			if !ok {
				writeError(w, ErrMissingToken)
				return
			}

			if HasCapability(authUser.Roles, cap) {
				next.ServeHTTP(w, r)
				return
			}

			if allowSelf && resourceUserID != nil && resourceUserID(r) == authUser.UserID {
				next.ServeHTTP(w, r)
				return
			}

			writeError(w, ErrForbidden)
		})
	}
}
