package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/gatewaydb"
	"github.com/zero-bot/codecoder/internal/logging"
)

// UserHandlers exposes the User & Quota Store's HTTP surface (spec
// §4.13), modeled on internal/approval.Service's functional-options
// constructor and writeJSON/writeError helpers.
type UserHandlers struct {
	store  *gatewaydb.Store
	logger logging.Logger
}

type UserHandlersOption func(*UserHandlers)

func WithUserHandlersLogger(logger logging.Logger) UserHandlersOption {
	return func(h *UserHandlers) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("gateway.users")
		} else {
			h.logger = logger
		}
	}
}

func NewUserHandlers(store *gatewaydb.Store, opts ...UserHandlersOption) *UserHandlers {
	h := &UserHandlers{store: store, logger: &logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires the User & Quota Store's HTTP surface onto mux
// under prefix, enforcing RBAC per endpoint (spec §4.13).
func (h *UserHandlers) RegisterRoutes(mux *http.ServeMux, prefix string) {
	byIDParam := func(r *http.Request) string { return r.PathValue("id") }

	mux.Handle("POST "+prefix, RequireCapability(CapUserWrite, false, nil)(http.HandlerFunc(h.HandleCreate)))
	mux.Handle("GET "+prefix, RequireCapability(CapUserRead, false, nil)(http.HandlerFunc(h.HandleList)))
	mux.Handle("GET "+prefix+"/{id}", RequireCapability(CapUserRead, true, byIDParam)(http.HandlerFunc(h.HandleGet)))
	mux.Handle("PATCH "+prefix+"/{id}", RequireCapability(CapUserWrite, true, byIDParam)(http.HandlerFunc(h.HandleUpdate)))
	mux.Handle("DELETE "+prefix+"/{id}", RequireCapability(CapUserAdmin, false, nil)(http.HandlerFunc(h.HandleDelete)))
}

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

func (h *UserHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New("gateway.users", apperr.KindValidation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, apperr.New("gateway.users", apperr.KindValidation, "BAD_REQUEST", "username and password are required", nil))
		return
	}

	u := &gatewaydb.User{ID: uuid.NewString(), Username: body.Username, Roles: body.Roles, Enabled: true}
	if len(u.Roles) == 0 {
		u.Roles = []string{"user"}
	}

	if err := h.store.CreateUser(r.Context(), u, body.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "user": u})
}

func (h *UserHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "users": users})
}

func (h *UserHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": u})
}

type updateUserRequest struct {
	Email       *string  `json:"email,omitempty"`
	DisplayName *string  `json:"display_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// HandleUpdate applies updateUserRequest to the target user. Self-access
// callers (enforced upstream by RequireCapability's allowSelf carve-out)
// may only ever reach this handler for their own profile when they lack
// CapUserWrite; it still refuses role and enabled changes from such a
// caller, since the carve-out covers read/update of profile fields only,
// never role, enabled, or deletion (spec §4.13).
func (h *UserHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New("gateway.users", apperr.KindValidation, "BAD_REQUEST", "invalid request body", err))
		return
	}

	authUser, _ := AuthUserFromContext(r.Context())
	isSelf := authUser != nil && authUser.UserID == id
	isAdmin := authUser != nil && HasCapability(authUser.Roles, CapUserAdmin)

	if isSelf && !isAdmin && (body.Roles != nil || body.Enabled != nil) {
		writeError(w, ErrForbidden)
		return
	}

	update := gatewaydb.UserUpdate{Email: body.Email, DisplayName: body.DisplayName}
	if isAdmin {
		update.Roles = body.Roles
		update.Enabled = body.Enabled
	}

	u, err := h.store.UpdateUser(r.Context(), id, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": u})
}

// HandleDelete is admin-only (spec §4.13: never a self-access carve-out)
// and additionally refuses an admin deleting their own account.
func (h *UserHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	authUser, _ := AuthUserFromContext(r.Context())
	if authUser != nil && authUser.UserID == id {
		writeError(w, apperr.New("gateway.users", apperr.KindConsistency, "CANNOT_DELETE_SELF", "cannot delete your own account", nil))
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
