package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-bot/codecoder/internal/gatewaydb"
)

func newTestUserHandlers(t *testing.T) (*UserHandlers, *gatewaydb.Store) {
	t.Helper()
	store := newTestGatewayStore(t)
	return NewUserHandlers(store), store
}

func TestUserHandlers_CreateAndGet(t *testing.T) {
	h, _ := newTestUserHandlers(t)

	body, _ := json.Marshal(createUserRequest{Username: "alice", Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleCreate(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		User gatewaydb.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "alice", out.User.Username)
	assert.Equal(t, []string{"user"}, out.User.Roles)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/users/"+out.User.ID, nil)
	getReq.SetPathValue("id", out.User.ID)
	getRec := httptest.NewRecorder()
	h.HandleGet(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestUserHandlers_Create_MissingFields(t *testing.T) {
	h, _ := newTestUserHandlers(t)

	body, _ := json.Marshal(createUserRequest{Username: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleCreate(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandlers_SelfUpdate_RefusesRoleChange(t *testing.T) {
	h, store := newTestUserHandlers(t)
	u := &gatewaydb.User{ID: "u1", Username: "bob", Roles: []string{"user"}, Enabled: true}
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	body, _ := json.Marshal(updateUserRequest{Roles: []string{"admin"}})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/u1", bytes.NewReader(body))
	req.SetPathValue("id", "u1")
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UserID: "u1", Roles: []string{"user"}}))
	rec := httptest.NewRecorder()

	h.HandleUpdate(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserHandlers_SelfUpdate_AllowsProfileFields(t *testing.T) {
	h, store := newTestUserHandlers(t)
	u := &gatewaydb.User{ID: "u1", Username: "bob", Roles: []string{"user"}, Enabled: true}
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	newEmail := "bob@example.com"
	body, _ := json.Marshal(updateUserRequest{Email: &newEmail})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/u1", bytes.NewReader(body))
	req.SetPathValue("id", "u1")
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UserID: "u1", Roles: []string{"user"}}))
	rec := httptest.NewRecorder()

	h.HandleUpdate(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, newEmail, got.Email)
	assert.Equal(t, []string{"user"}, got.Roles)
}

func TestUserHandlers_AdminUpdate_CanChangeRoles(t *testing.T) {
	h, store := newTestUserHandlers(t)
	u := &gatewaydb.User{ID: "u1", Username: "bob", Roles: []string{"user"}, Enabled: true}
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	body, _ := json.Marshal(updateUserRequest{Roles: []string{"admin"}})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/u1", bytes.NewReader(body))
	req.SetPathValue("id", "u1")
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UserID: "admin-1", Roles: []string{"admin"}}))
	rec := httptest.NewRecorder()

	h.HandleUpdate(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.Roles)
}

func TestUserHandlers_Delete_RefusesSelfDelete(t *testing.T) {
	h, store := newTestUserHandlers(t)
	u := &gatewaydb.User{ID: "admin-1", Username: "root", Roles: []string{"admin"}, Enabled: true}
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/admin-1", nil)
	req.SetPathValue("id", "admin-1")
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UserID: "admin-1", Roles: []string{"admin"}}))
	rec := httptest.NewRecorder()

	h.HandleDelete(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err := store.GetUser(context.Background(), "admin-1")
	assert.NoError(t, err)
}

func TestUserHandlers_Delete_Success(t *testing.T) {
	h, store := newTestUserHandlers(t)
	u := &gatewaydb.User{ID: "u1", Username: "bob", Roles: []string{"user"}, Enabled: true}
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/u1", nil)
	req.SetPathValue("id", "u1")
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{UserID: "admin-1", Roles: []string{"admin"}}))
	rec := httptest.NewRecorder()

	h.HandleDelete(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := store.GetUser(context.Background(), "u1")
	assert.Error(t, err)
}

func TestUserHandlers_List(t *testing.T) {
	h, store := newTestUserHandlers(t)
	require.NoError(t, store.CreateUser(context.Background(), &gatewaydb.User{ID: "u1", Username: "amy", Roles: []string{"user"}, Enabled: true}, "pw"))
	require.NoError(t, store.CreateUser(context.Background(), &gatewaydb.User{ID: "u2", Username: "zoe", Roles: []string{"user"}, Enabled: true}, "pw"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Users []gatewaydb.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Users, 2)
}
