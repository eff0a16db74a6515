package channelbus

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryQueue(t *testing.T, opts ...RetryQueueOption) (*RetryQueue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retry-queue.json")
	q, err := NewRetryQueue(path, opts...)
	require.NoError(t, err)
	return q, path
}

func TestRetryQueue_PushPersistsToDisk(t *testing.T) {
	q, path := newTestRetryQueue(t)

	require.NoError(t, q.Push(FailedNotification{
		Message: "hello", ChannelType: "telegram", ChannelID: "alice",
	}))
	assert.Equal(t, 1, q.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []FailedNotification
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Message)
	assert.NotEmpty(t, entries[0].ID)
}

func TestRetryQueue_ReloadDropsExpiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry-queue.json")

	stale := FailedNotification{
		ID: "stale", Message: "old", ChannelType: "telegram", ChannelID: "alice",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	fresh := FailedNotification{
		ID: "fresh", Message: "new", ChannelType: "telegram", ChannelID: "bob",
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal([]FailedNotification{stale, fresh})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	q, err := NewRetryQueue(path)
	require.NoError(t, err)

	assert.Equal(t, 1, q.Len())
}

func TestRetryQueue_PushEvictsOldestAtCapacity(t *testing.T) {
	q, _ := newTestRetryQueue(t, WithRetryQueueCapacity(2))

	require.NoError(t, q.Push(FailedNotification{ID: "1", ChannelType: "telegram", ChannelID: "a"}))
	require.NoError(t, q.Push(FailedNotification{ID: "2", ChannelType: "telegram", ChannelID: "a"}))
	require.NoError(t, q.Push(FailedNotification{ID: "3", ChannelType: "telegram", ChannelID: "a"}))

	assert.Equal(t, 2, q.Len())
}

func TestRetryQueue_SweepDropsOnSuccess(t *testing.T) {
	q, _ := newTestRetryQueue(t)
	require.NoError(t, q.Push(FailedNotification{ID: "1", ChannelType: "telegram", ChannelID: "a"}))

	require.NoError(t, q.Sweep(func(f FailedNotification) error { return nil }))
	assert.Equal(t, 0, q.Len())
}

func TestRetryQueue_SweepRequeuesOnTransientFailure(t *testing.T) {
	q, _ := newTestRetryQueue(t)
	require.NoError(t, q.Push(FailedNotification{ID: "1", ChannelType: "telegram", ChannelID: "a"}))

	require.NoError(t, q.Sweep(func(f FailedNotification) error { return errors.New("down") }))
	assert.Equal(t, 1, q.Len())
}

func TestRetryQueue_SweepDropsAfterMaxRetries(t *testing.T) {
	q, _ := newTestRetryQueue(t)
	require.NoError(t, q.Push(FailedNotification{
		ID: "1", ChannelType: "telegram", ChannelID: "a", RetryCount: MaxNotificationRetries - 1,
	}))

	require.NoError(t, q.Sweep(func(f FailedNotification) error { return errors.New("down") }))
	assert.Equal(t, 0, q.Len())
}

func TestRetryQueue_SweepDropsExpiredWithoutAttempting(t *testing.T) {
	q, _ := newTestRetryQueue(t)
	require.NoError(t, q.Push(FailedNotification{
		ID: "1", ChannelType: "telegram", ChannelID: "a",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))

	attempted := false
	require.NoError(t, q.Sweep(func(f FailedNotification) error {
		attempted = true
		return nil
	}))

	assert.False(t, attempted)
	assert.Equal(t, 0, q.Len())
}
