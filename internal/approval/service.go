package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/logging"
	"github.com/zero-bot/codecoder/internal/telemetry"
)

// Service is the HTTP surface for the HitL engine (spec §4.3). It
// orchestrates a Store and a RendererRegistry; route registration is the
// caller's responsibility (see RegisterRoutes).
type Service struct {
	store     Store
	renderers RendererRegistry

	logger logging.Logger
}

// ServiceOption configures optional Service dependencies, following the
// framework's functional-options convention.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger, tagging it with the "hitl" component
// when the logger supports component segregation.
func WithServiceLogger(logger logging.Logger) ServiceOption {
	return func(s *Service) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			s.logger = cal.WithComponent("hitl")
		} else {
			s.logger = logger
		}
	}
}

// NewService constructs a Service. Returns a concrete type per Go idiom
// "return structs, accept interfaces".
func NewService(store Store, renderers RendererRegistry, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		renderers: renderers,
		logger:    &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes wires the HitL endpoints onto mux using Go 1.22+
// method-prefixed patterns, matching the teacher's routing style.
func (s *Service) RegisterRoutes(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")
	mux.HandleFunc("POST "+prefix+"/request", s.HandleCreate)
	mux.HandleFunc("GET "+prefix+"/pending", s.HandlePending)
	mux.HandleFunc("GET "+prefix+"/{id}", s.HandleGet)
	mux.HandleFunc("POST "+prefix+"/{id}/decide", s.HandleDecide)
	mux.HandleFunc("POST "+prefix+"/callback/{channel}", s.HandleCallback)
}

// CreateRequest is the body of POST /request.
type CreateRequest struct {
	ApprovalType ApprovalType    `json:"approval_type"`
	Requester    string          `json:"requester"`
	Approvers    []string        `json:"approvers"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Channel      string          `json:"channel"`
	ChannelID    string          `json:"channel_id"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	TTLSeconds   int64           `json:"ttl_seconds,omitempty"`
}

// HandleCreate implements POST /request (spec §4.3).
func (s *Service) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperr.New("hitl.create", apperr.KindValidation, "BAD_REQUEST", "invalid JSON: "+err.Error(), err))
		return
	}

	if strings.TrimSpace(body.Title) == "" {
		s.writeError(w, apperr.New("hitl.create", apperr.KindValidation, "TITLE_REQUIRED", "title must not be empty", nil))
		return
	}
	if len(body.Approvers) == 0 {
		s.writeError(w, apperr.New("hitl.create", apperr.KindValidation, "APPROVERS_REQUIRED", "approvers must not be empty", nil))
		return
	}
	renderer, hasRenderer := s.renderers.Renderer(body.Channel)
	if !hasRenderer {
		s.writeError(w, apperr.New("hitl.create", apperr.KindValidation, "UNKNOWN_CHANNEL", fmt.Sprintf("no renderer registered for channel %q", body.Channel), nil))
		return
	}

	now := time.Now().UTC()
	req := &Request{
		ID:           uuid.NewString(),
		ApprovalType: body.ApprovalType,
		Status:       StatusPending,
		Requester:    body.Requester,
		Approvers:    body.Approvers,
		Title:        body.Title,
		Description:  body.Description,
		Channel:      body.Channel,
		Metadata:     body.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if body.TTLSeconds > 0 {
		exp := now.Add(time.Duration(body.TTLSeconds) * time.Second)
		req.ExpiresAt = &exp
	}

	if err := s.store.Create(ctx, req); err != nil {
		telemetry.RecordSpanError(ctx, err)
		s.logger.ErrorWithContext(ctx, "failed to persist approval request", map[string]interface{}{
			"operation": "hitl_create", "error": err.Error(),
		})
		s.writeError(w, apperr.New("hitl.create", apperr.KindFatal, "STORE_ERROR", "failed to persist request", err))
		return
	}

	telemetry.AddSpanEvent(ctx, "hitl.request.created",
		attribute.String("request_id", req.ID),
		attribute.String("channel", req.Channel),
	)

	// Send failure does not roll back the create; it's retriable
	// externally and the request is returned as created regardless
	// (spec §4.3).
	messageID, err := renderer.SendApprovalCard(ctx, req, body.ChannelID)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		s.logger.WarnWithContext(ctx, "failed to send approval card", map[string]interface{}{
			"operation": "hitl_create", "request_id": req.ID, "error": err.Error(),
		})
	} else if messageID != "" {
		if err := s.store.UpdateMessageID(ctx, req.ID, messageID); err != nil {
			s.logger.WarnWithContext(ctx, "failed to record message id", map[string]interface{}{
				"operation": "hitl_create", "request_id": req.ID, "error": err.Error(),
			})
		} else {
			req.MessageID = messageID
		}
	}

	telemetry.Counter("hitl.request.created", "channel", req.Channel)
	s.writeJSON(w, http.StatusCreated, req)
}

// HandlePending implements GET /pending?approver_id= (spec §4.3).
func (s *Service) HandlePending(w http.ResponseWriter, r *http.Request) {
	approverID := r.URL.Query().Get("approver_id")
	reqs, err := s.store.ListPending(r.Context(), approverID)
	if err != nil {
		s.writeError(w, apperr.New("hitl.pending", apperr.KindFatal, "STORE_ERROR", "failed to list pending requests", err))
		return
	}
	if reqs == nil {
		reqs = []*Request{}
	}
	s.writeJSON(w, http.StatusOK, reqs)
}

// HandleGet implements GET /:id (spec §4.3).
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, s.mapStoreError("hitl.get", err))
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

// HandleDecide implements POST /:id/decide (spec §4.3).
func (s *Service) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var body DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperr.New("hitl.decide", apperr.KindValidation, "BAD_REQUEST", "invalid JSON: "+err.Error(), err))
		return
	}

	req, err := s.decide(ctx, id, body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

// decide centralizes the authorization + transition logic shared by
// HandleDecide and HandleCallback.
func (s *Service) decide(ctx context.Context, id string, body DecideRequest) (*Request, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError("hitl.decide", err)
	}
	if existing.IsTerminal() {
		return nil, apperr.New("hitl.decide", apperr.KindConsistency, "ALREADY_TERMINAL", "request already in a terminal state", ErrAlreadyTerminal)
	}
	if !existing.HasApprover(body.DecidedBy) {
		return nil, apperr.New("hitl.decide", apperr.KindAuthorization, "FORBIDDEN", "decided_by is not an authorized approver", ErrNotApprover)
	}

	status := StatusRejected
	if body.Approved {
		status = StatusApproved
	}

	updated, err := s.store.UpdateStatus(ctx, id, status, body.DecidedBy, body.Reason)
	if err != nil {
		return nil, s.mapStoreError("hitl.decide", err)
	}

	telemetry.Counter("hitl.request.decided", "channel", updated.Channel, "status", string(status))

	if renderer, ok := s.renderers.Renderer(updated.Channel); ok && updated.MessageID != "" {
		if err := renderer.UpdateCard(ctx, updated, updated.MessageID); err != nil {
			s.logger.WarnWithContext(ctx, "best-effort card update failed", map[string]interface{}{
				"operation": "hitl_decide", "request_id": id, "error": err.Error(),
			})
		}
	}

	return updated, nil
}

// HandleCallback implements POST /callback/:channel (spec §4.3).
func (s *Service) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := r.PathValue("channel")

	renderer, ok := s.renderers.Renderer(channel)
	if !ok {
		s.writeError(w, apperr.New("hitl.callback", apperr.KindValidation, "UNKNOWN_CHANNEL", fmt.Sprintf("no renderer registered for channel %q", channel), nil))
		return
	}

	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, apperr.New("hitl.callback", apperr.KindTransport, "READ_ERROR", "failed to read callback body", err))
		return
	}

	cb, err := renderer.ParseCallback(raw)
	if err != nil {
		s.writeError(w, apperr.New("hitl.callback", apperr.KindValidation, "BAD_CALLBACK", "failed to parse callback payload", err))
		return
	}

	body := DecideRequest{
		DecidedBy: cb.UserID,
		Approved:  cb.Action == CallbackApprove,
		Reason:    cb.Reason,
	}

	req, err := s.decide(ctx, cb.RequestID, body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Service) mapStoreError(op string, err error) error {
	switch err {
	case ErrRequestNotFound:
		return apperr.New(op, apperr.KindNotFound, "NOT_FOUND", "approval request not found", err)
	case ErrAlreadyTerminal:
		return apperr.New(op, apperr.KindConsistency, "ALREADY_TERMINAL", "request already in a terminal state", err)
	default:
		return apperr.New(op, apperr.KindFatal, "STORE_ERROR", "store operation failed", err)
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.ErrorWithContext(context.Background(), "failed to encode response", map[string]interface{}{
			"operation": "hitl_response", "error": err.Error(),
		})
	}
}

// errorResponse is the stable {success, error, code} shape (spec §7).
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	status, code := apperr.StatusAndCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&errorResponse{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	})
}
