package channelbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zero-bot/codecoder/internal/logging"
)

// DefaultRetryQueueCapacity caps the number of failed notifications kept
// in the queue at once (spec §4.10).
const DefaultRetryQueueCapacity = 100

// MaxNotificationRetries is the per-entry retry cap before it is dropped
// (spec §4.10).
const MaxNotificationRetries = 10

// NotificationExpiry is how long a failed notification remains eligible
// for retry after it was first queued (spec §3.7, §4.10).
const NotificationExpiry = time.Hour

// RetrySweepInterval is how often the background retry task runs.
const RetrySweepInterval = 5 * time.Minute

// RetryBatchSize is how many entries the background task attempts per
// sweep.
const RetryBatchSize = 10

// FailedNotification is a queued outbound send that failed at least once
// (spec §3.7).
type FailedNotification struct {
	ID          string     `json:"id"`
	Message     string     `json:"message"`
	ChannelType string     `json:"channel_type"`
	ChannelID   string     `json:"channel_id"`
	SignalID    string     `json:"signal_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RetryCount  int        `json:"retry_count"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func (f FailedNotification) expired(now time.Time) bool {
	return now.Sub(f.CreatedAt) > NotificationExpiry
}

// Sender attempts to deliver a FailedNotification; implementations
// typically wrap a NotificationSink.
type RetrySender func(f FailedNotification) error

// RetryQueue is the disk-persisted FIFO of failed outbound notifications
// described in spec §4.10. Every mutation is followed by an atomic
// rewrite of the backing file (temp file + rename) so a crash never
// leaves a torn file on disk.
type RetryQueue struct {
	mu       sync.Mutex
	path     string
	capacity int
	entries  []FailedNotification
	logger   logging.Logger
}

// RetryQueueOption configures optional RetryQueue dependencies.
type RetryQueueOption func(*RetryQueue)

func WithRetryQueueCapacity(n int) RetryQueueOption {
	return func(q *RetryQueue) { q.capacity = n }
}

func WithRetryQueueLogger(logger logging.Logger) RetryQueueOption {
	return func(q *RetryQueue) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(logging.ComponentAwareLogger); ok {
			q.logger = cal.WithComponent("channelbus.retry_queue")
		} else {
			q.logger = logger
		}
	}
}

// NewRetryQueue loads path (if it exists), drops expired entries, and
// returns a ready RetryQueue.
func NewRetryQueue(path string, opts ...RetryQueueOption) (*RetryQueue, error) {
	q := &RetryQueue{
		path:     path,
		capacity: DefaultRetryQueueCapacity,
		logger:   &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.load(); err != nil {
		return nil, fmt.Errorf("load retry queue: %w", err)
	}
	return q, nil
}

func (q *RetryQueue) load() error {
	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		q.entries = nil
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		q.entries = nil
		return nil
	}

	var entries []FailedNotification
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	now := time.Now()
	fresh := make([]FailedNotification, 0, len(entries))
	for _, e := range entries {
		if !e.expired(now) {
			fresh = append(fresh, e)
		}
	}
	q.entries = fresh
	return q.persistLocked()
}

// Push appends a failed notification, evicting the oldest entry if the
// queue is at capacity (spec §4.10's bounded FIFO).
func (q *RetryQueue) Push(f FailedNotification) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	q.entries = append(q.entries, f)
	if len(q.entries) > q.capacity {
		q.entries = q.entries[len(q.entries)-q.capacity:]
	}
	return q.persistLocked()
}

// Len reports how many entries are currently queued.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Sweep pops up to RetryBatchSize entries from the front of the queue
// and attempts send via sender, per spec §4.10: drop on success, drop on
// expiry, drop on exceeding MaxNotificationRetries, otherwise re-queue
// with an incremented retry_count/last_retry_at/last_error.
func (q *RetryQueue) Sweep(sender RetrySender) error {
	q.mu.Lock()
	batch := q.entries
	if len(batch) > RetryBatchSize {
		batch = batch[:RetryBatchSize]
	}
	rest := append([]FailedNotification(nil), q.entries[len(batch):]...)
	q.mu.Unlock()

	now := time.Now()
	var requeue []FailedNotification

	for _, f := range batch {
		if f.expired(now) {
			continue
		}

		if err := sender(f); err != nil {
			f.RetryCount++
			f.LastRetryAt = &now
			f.LastError = err.Error()
			if f.RetryCount >= MaxNotificationRetries {
				continue
			}
			requeue = append(requeue, f)
			continue
		}
		// success: drop
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(requeue, rest...)
	if len(q.entries) > q.capacity {
		q.entries = q.entries[len(q.entries)-q.capacity:]
	}
	return q.persistLocked()
}

func (q *RetryQueue) persistLocked() error {
	data, err := json.MarshalIndent(q.entries, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(q.path)
	tmp, err := os.CreateTemp(dir, ".retry-queue-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, q.path)
}
