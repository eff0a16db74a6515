package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := NewSQLiteStore(context.Background(), path, 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_AppendAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)
	e := newEntry(ActionCreated, "u1")
	require.NoError(t, s.Append(context.Background(), e))

	got, err := s.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, ActionCreated, got.Action)
}

func TestSQLiteStore_Get_Unknown(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSQLiteStore_QueryFiltersAndPaginates(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.NoError(t, s.Append(context.Background(), newEntry(ActionCreated, "u1")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionApproved, "u1")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionApproved, "u2")))

	entries, total, err := s.Query(context.Background(), Query{ActorID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, entries, 2)
}

func TestSQLiteStore_Summary(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.NoError(t, s.Append(context.Background(), newEntry(ActionBlocked, "u1")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionBlocked, "u2")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionCreated, "u1")))

	summary, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalCount)
	assert.Equal(t, int64(2), summary.CountsByAction[string(ActionBlocked)])
	assert.Len(t, summary.RecentBlocked, 2)
	require.Len(t, summary.CountsByDay, 1)
}

func TestSQLiteStore_CacheWarmsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s1, err := NewSQLiteStore(context.Background(), path, 100)
	require.NoError(t, err)
	e := newEntry(ActionCreated, "u1")
	require.NoError(t, s1.Append(context.Background(), e))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(context.Background(), path, 100)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}
