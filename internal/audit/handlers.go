package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/logging"
)

// Handlers exposes the Audit Log's HTTP surface (spec §6.2) over a
// Store, which may be a MemoryStore or a SQLiteStore.
type Handlers struct {
	store  Store
	logger logging.Logger
}

type HandlersOption func(*Handlers)

func WithHandlersLogger(logger logging.Logger) HandlersOption {
	return func(h *Handlers) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			h.logger = cal.WithComponent("audit")
		} else {
			h.logger = logger
		}
	}
}

func NewHandlers(store Store, opts ...HandlersOption) *Handlers {
	h := &Handlers{store: store, logger: &logging.NoOpLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires GET /audit, /audit/{id}, /audit/user/{user_id},
// and /audit/summary onto mux under prefix.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")
	mux.HandleFunc("GET "+prefix, h.HandleQuery)
	mux.HandleFunc("GET "+prefix+"/summary", h.HandleSummary)
	mux.HandleFunc("GET "+prefix+"/user/{user_id}", h.HandleByUser)
	mux.HandleFunc("GET "+prefix+"/{id}", h.HandleGet)
}

func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, total, err := h.store.Query(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "entries": entries, "total": total})
}

func (h *Handlers) HandleByUser(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q.ActorID = r.PathValue("user_id")

	entries, total, err := h.store.Query(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "entries": entries, "total": total})
}

func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "entry": entry})
}

func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "summary": summary})
}

func parseQuery(r *http.Request) (Query, error) {
	q := Query{
		ActorID:    r.URL.Query().Get("user_id"),
		ActionType: ActionType(r.URL.Query().Get("action_type")),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, apperr.New("audit.query", apperr.KindValidation, "BAD_REQUEST", "invalid limit", err)
		}
		q.PageSize = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return q, apperr.New("audit.query", apperr.KindValidation, "BAD_REQUEST", "invalid offset", err)
		}
		pageSize := q.pageSizeOrDefault()
		q.Page = offset/pageSize + 1
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, apperr.New("audit.query", apperr.KindValidation, "BAD_REQUEST", "invalid start_time", err)
		}
		q.Since = &t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, apperr.New("audit.query", apperr.KindValidation, "BAD_REQUEST", "invalid end_time", err)
		}
		q.Until = &t
	}

	return q, nil
}

func writeError(w http.ResponseWriter, err error) {
	status, code := apperr.StatusAndCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error(), "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
