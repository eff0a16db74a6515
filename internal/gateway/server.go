package gateway

import (
	"net/http"
	"strings"

	"github.com/zero-bot/codecoder/internal/gatewaydb"
	"github.com/zero-bot/codecoder/internal/logging"
)

// Gateway wires together the API Gateway core's pieces — authentication,
// RBAC, the User & Quota Store's HTTP surface, the proxy dispatcher, and
// the parallel inference router — onto a single mux, mirroring
// internal/approval.Service's RegisterRoutes convention (spec §4.13-4.15).
type Gateway struct {
	auth      *Authenticator
	store     *gatewaydb.Store
	users     *UserHandlers
	proxy     *Proxy
	inference *InferenceRouter

	logger logging.Logger
}

// GatewayOption configures optional Gateway dependencies.
type GatewayOption func(*Gateway)

func WithGatewayLogger(logger logging.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			g.logger = cal.WithComponent("gateway")
		} else {
			g.logger = logger
		}
	}
}

func WithInferenceRouter(router *InferenceRouter) GatewayOption {
	return func(g *Gateway) { g.inference = router }
}

// NewGateway constructs a Gateway from its store, authenticator, and
// proxy. The inference router is optional (attach via
// WithInferenceRouter) since not every deployment proxies to an
// inference provider.
func NewGateway(store *gatewaydb.Store, auth *Authenticator, proxy *Proxy, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		auth:   auth,
		store:  store,
		users:  NewUserHandlers(store),
		proxy:  proxy,
		logger: &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Expires string `json:"expires_at"`
}

// RegisterRoutes wires the full API Gateway surface onto mux under
// prefix. Login is unauthenticated; every other route requires a valid
// bearer token via the Verify middleware, with RBAC enforced per
// endpoint by the individual handlers.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")
	verify := Verify(g.auth)

	mux.HandleFunc("POST "+prefix+"/login", g.HandleLogin)

	// Every other endpoint needs a verified AuthUser in context before its
	// own RBAC check runs, so the user-store and inference routes are
	// registered on a dedicated submux and mounted once behind Verify.
	authed := http.NewServeMux()
	g.users.RegisterRoutes(authed, "/users")
	if g.inference != nil {
		authed.Handle("POST /inference", RequireCapability(CapInferenceUse, false, nil)(http.HandlerFunc(g.inference.HandleInference)))
	}
	mux.Handle(prefix+"/", http.StripPrefix(prefix, verify(authed)))

	if g.proxy != nil {
		mux.Handle(prefix+"/proxy/", verify(g.proxy))
	}
}

// HandleLogin implements POST /login: verifies credentials against the
// User & Quota Store and issues a bearer token.
func (g *Gateway) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	user, err := g.store.VerifyPassword(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, expiry, err := g.auth.Issue(user.ID, user.Roles)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: token, Expires: expiry.Format("2006-01-02T15:04:05Z07:00")})
}
