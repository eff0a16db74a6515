package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zero-bot/codecoder/internal/apperr"
)

// Verify builds middleware that extracts a bearer token from the
// Authorization header, validates it via auth, and attaches the
// resulting AuthUser to the request context (spec §4.14).
func Verify(auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if header == "" || !ok || token == "" {
				writeError(w, ErrMissingToken)
				return
			}

			authUser, err := auth.Verify(token)
			if err != nil {
				writeError(w, err)
				return
			}

			r = r.WithContext(WithAuthUser(r.Context(), authUser))
			next.ServeHTTP(w, r)
		})
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	status, code := apperr.StatusAndCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Success: false, Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errInvalidRequestBody = apperr.New("gateway", apperr.KindValidation, "BAD_REQUEST", "invalid request body", nil)

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidRequestBody
	}
	return nil
}
