package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	channel       string
	sendMessageID string
	sendErr       error
	updateErr     error
	parseFn       func([]byte) (*CallbackData, error)
	updates       []string
}

var _ Renderer = (*stubRenderer)(nil)

func (s *stubRenderer) ChannelType() string { return s.channel }

func (s *stubRenderer) SendApprovalCard(_ context.Context, _ *Request, _ string) (string, error) {
	return s.sendMessageID, s.sendErr
}

func (s *stubRenderer) UpdateCard(_ context.Context, req *Request, messageID string) error {
	s.updates = append(s.updates, string(req.Status)+":"+messageID)
	return s.updateErr
}

func (s *stubRenderer) ParseCallback(raw []byte) (*CallbackData, error) {
	if s.parseFn != nil {
		return s.parseFn(raw)
	}
	return nil, assertNeverCalled
}

var assertNeverCalled = &callbackParseError{"no parseFn configured on stubRenderer"}

type callbackParseError struct{ msg string }

func (e *callbackParseError) Error() string { return e.msg }

func newServer(t *testing.T) (*Service, Store, *stubRenderer) {
	t.Helper()
	store := NewMemoryStore()
	r := &stubRenderer{channel: "telegram", sendMessageID: "msg-1"}
	registry := MapRegistry{"telegram": r}
	svc := NewService(store, registry)
	return svc, store, r
}

func mux(svc *Service) *http.ServeMux {
	m := http.NewServeMux()
	svc.RegisterRoutes(m, "/api/v1/hitl")
	return m
}

func TestHandleCreate_Success(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	body := CreateRequest{
		Title:     "Deploy to prod",
		Requester: "alice",
		Approvers: []string{"bob"},
		Channel:   "telegram",
		ChannelID: "chat-1",
	}
	raw, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/request", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "msg-1", got.MessageID)
	assert.NotEmpty(t, got.ID)
}

func TestHandleCreate_TitleRequired(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	raw, _ := json.Marshal(CreateRequest{Approvers: []string{"bob"}, Channel: "telegram"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/request", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreate_ApproversRequired(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	raw, _ := json.Marshal(CreateRequest{Title: "x", Channel: "telegram"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/request", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreate_UnknownChannel(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	raw, _ := json.Marshal(CreateRequest{Title: "x", Approvers: []string{"a"}, Channel: "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/request", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGet_NotFound(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hitl/does-not-exist", nil)
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDecide_ApproveSuccess(t *testing.T) {
	svc, store, _ := newServer(t)
	m := mux(svc)

	created := createOne(t, m)

	decideBody, _ := json.Marshal(DecideRequest{DecidedBy: "bob", Approved: true})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/"+created.ID+"/decide", bytes.NewReader(decideBody))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, "bob", got.DecidedBy)

	entries, err := store.GetAuditLog(req.Context(), created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionCreated, entries[0].Action)
	assert.Equal(t, ActionApproved, entries[1].Action)
}

func TestHandleDecide_NotApprover(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	created := createOne(t, m)

	decideBody, _ := json.Marshal(DecideRequest{DecidedBy: "mallory", Approved: true})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/"+created.ID+"/decide", bytes.NewReader(decideBody))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleDecide_AlreadyTerminal(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	created := createOne(t, m)

	decideBody, _ := json.Marshal(DecideRequest{DecidedBy: "bob", Approved: true})
	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/"+created.ID+"/decide", bytes.NewReader(decideBody))
	rec1 := httptest.NewRecorder()
	m.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/"+created.ID+"/decide", bytes.NewReader(decideBody))
	rec2 := httptest.NewRecorder()
	m.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestHandlePending_FiltersByApprover(t *testing.T) {
	svc, _, _ := newServer(t)
	m := mux(svc)

	_ = createOne(t, m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hitl/pending?approver_id=bob", nil)
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []*Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 1)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/hitl/pending?approver_id=nobody", nil)
	rec2 := httptest.NewRecorder()
	m.ServeHTTP(rec2, req2)
	var got2 []*Request
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &got2))
	assert.Len(t, got2, 0)
}

func TestHandleCallback_DelegatesToDecide(t *testing.T) {
	svc, _, renderer := newServer(t)
	m := mux(svc)

	created := createOne(t, m)
	renderer.parseFn = func(raw []byte) (*CallbackData, error) {
		return &CallbackData{RequestID: created.ID, Action: CallbackApprove, UserID: "bob"}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/callback/telegram", bytes.NewReader([]byte("approve:"+created.ID)))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusApproved, got.Status)
}

func createOne(t *testing.T, m *http.ServeMux) *Request {
	t.Helper()
	body := CreateRequest{
		Title:     "Deploy to prod",
		Requester: "alice",
		Approvers: []string{"bob"},
		Channel:   "telegram",
		ChannelID: "chat-1",
	}
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hitl/request", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)
	var got Request
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	return &got
}
