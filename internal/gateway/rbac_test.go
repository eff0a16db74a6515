package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCapability(t *testing.T) {
	assert.True(t, HasCapability([]string{"admin"}, CapUserAdmin))
	assert.True(t, HasCapability([]string{"user"}, CapProxyUse))
	assert.False(t, HasCapability([]string{"user"}, CapUserAdmin))
	assert.False(t, HasCapability([]string{"unknown-role"}, CapUserRead))
}

func TestRequireCapability_MissingToken(t *testing.T) {
	handler := RequireCapability(CapUserAdmin, false, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireCapability_GrantedByRole(t *testing.T) {
	handler := RequireCapability(CapUserAdmin, false, nil)(okHandler())

	req := withAuthUser(httptest.NewRequest(http.MethodGet, "/x", nil), &AuthUser{UserID: "u1", Roles: []string{"admin"}})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireCapability_DeniedWithoutSelfCarveout(t *testing.T) {
	resourceID := func(r *http.Request) string { return "u2" }
	handler := RequireCapability(CapUserAdmin, true, resourceID)(okHandler())

	req := withAuthUser(httptest.NewRequest(http.MethodGet, "/x", nil), &AuthUser{UserID: "u1", Roles: []string{"user"}})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireCapability_SelfCarveoutAllows(t *testing.T) {
	resourceID := func(r *http.Request) string { return "u1" }
	handler := RequireCapability(CapUserWrite, true, resourceID)(okHandler())

	req := withAuthUser(httptest.NewRequest(http.MethodGet, "/x", nil), &AuthUser{UserID: "u1", Roles: []string{}})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withAuthUser(r *http.Request, u *AuthUser) *http.Request {
	return r.WithContext(WithAuthUser(r.Context(), u))
}
