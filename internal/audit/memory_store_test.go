package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(action ActionType, actorID string) *Entry {
	return &Entry{ID: uuid.NewString(), Action: action, ActorID: actorID}
}

func TestMemoryStore_AppendAndGet(t *testing.T) {
	s := NewMemoryStore(10)
	e := newEntry(ActionCreated, "u1")
	require.NoError(t, s.Append(context.Background(), e))

	got, err := s.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestMemoryStore_Get_Unknown(t *testing.T) {
	s := NewMemoryStore(10)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestMemoryStore_EvictsOldestAtCapacity(t *testing.T) {
	s := NewMemoryStore(2)
	first := newEntry(ActionCreated, "u1")
	second := newEntry(ActionApproved, "u1")
	third := newEntry(ActionRejected, "u1")

	require.NoError(t, s.Append(context.Background(), first))
	require.NoError(t, s.Append(context.Background(), second))
	require.NoError(t, s.Append(context.Background(), third))

	_, err := s.Get(context.Background(), first.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	got, err := s.Get(context.Background(), third.ID)
	require.NoError(t, err)
	assert.Equal(t, third.ID, got.ID)
}

func TestMemoryStore_QueryFiltersByActorAndAction(t *testing.T) {
	s := NewMemoryStore(10)
	require.NoError(t, s.Append(context.Background(), newEntry(ActionCreated, "u1")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionApproved, "u2")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionApproved, "u1")))

	entries, total, err := s.Query(context.Background(), Query{ActorID: "u1", ActionType: ActionApproved})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ActorID)
}

func TestMemoryStore_QueryPaginates(t *testing.T) {
	s := NewMemoryStore(10)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(context.Background(), newEntry(ActionCreated, "u1")))
	}

	page1, total, err := s.Query(context.Background(), Query{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page1, 2)

	page3, _, err := s.Query(context.Background(), Query{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestMemoryStore_Summary(t *testing.T) {
	s := NewMemoryStore(10)
	require.NoError(t, s.Append(context.Background(), newEntry(ActionCreated, "u1")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionBlocked, "u1")))
	require.NoError(t, s.Append(context.Background(), newEntry(ActionBlocked, "u2")))

	summary, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalCount)
	assert.Equal(t, int64(2), summary.CountsByAction[string(ActionBlocked)])
	assert.Len(t, summary.RecentBlocked, 2)
	require.Len(t, summary.CountsByDay, 1)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), summary.CountsByDay[0].Day)
}
