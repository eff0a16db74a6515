package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hitl.db")
	store, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	req := newTestRequest("req-1")
	require.NoError(t, store.Create(ctx, req))

	got, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, req.Title, got.Title)
	assert.Equal(t, req.Approvers, got.Approvers)
	assert.Equal(t, StatusPending, got.Status)

	entries, err := store.GetAuditLog(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCreated, entries[0].Action)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestSQLiteStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestSQLiteStore_UpdateStatus_ApprovedThenRejectFails(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	req := newTestRequest("req-2")
	require.NoError(t, store.Create(ctx, req))

	updated, err := store.UpdateStatus(ctx, "req-2", StatusApproved, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, updated.Status)
	assert.Equal(t, "bob", updated.DecidedBy)

	_, err = store.UpdateStatus(ctx, "req-2", StatusRejected, "bob", "too risky")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestSQLiteStore_UpdateStatus_Unknown(t *testing.T) {
	store := newTestSQLiteStore(t)
	_, err := store.UpdateStatus(context.Background(), "nope", StatusApproved, "bob", "")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestSQLiteStore_ListPending_OrderedAndFiltered(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	r1 := newTestRequest("req-a")
	r1.Approvers = []string{"bob"}
	r2 := newTestRequest("req-b")
	r2.Approvers = []string{"carol"}
	r2.CreatedAt = r1.CreatedAt.Add(time.Second)
	r2.UpdatedAt = r2.CreatedAt

	require.NoError(t, store.Create(ctx, r1))
	require.NoError(t, store.Create(ctx, r2))

	all, err := store.ListPending(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "req-a", all[0].ID)
	assert.Equal(t, "req-b", all[1].ID)

	onlyBob, err := store.ListPending(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, onlyBob, 1)
	assert.Equal(t, "req-a", onlyBob[0].ID)
}

func TestSQLiteStore_UpdateMessageID(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	req := newTestRequest("req-3")
	require.NoError(t, store.Create(ctx, req))

	require.NoError(t, store.UpdateMessageID(ctx, "req-3", "platform-msg-1"))

	got, err := store.Get(ctx, "req-3")
	require.NoError(t, err)
	assert.Equal(t, "platform-msg-1", got.MessageID)

	entries, err := store.GetAuditLog(ctx, "req-3")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionMessageSent, entries[1].Action)
}

func TestSQLiteStore_ResetToPending(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	req := newTestRequest("req-4")
	require.NoError(t, store.Create(ctx, req))
	_, err := store.UpdateStatus(ctx, "req-4", StatusRejected, "bob", "no")
	require.NoError(t, err)

	require.NoError(t, store.ResetToPending(ctx, "req-4"))

	got, err := store.Get(ctx, "req-4")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.DecidedBy)
}

func newTestRequest(id string) *Request {
	now := time.Now().UTC()
	return &Request{
		ID:        id,
		Status:    StatusPending,
		Requester: "alice",
		Approvers: []string{"bob"},
		Title:     "Deploy to prod",
		Channel:   "telegram",
		ApprovalType: ApprovalType{
			Kind: TypeHighCostOperation,
			Operation:     "deploy",
			EstimatedCost: 12.5,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
