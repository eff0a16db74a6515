package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zero-bot/codecoder/internal/apperr"
)

var ErrEntryNotFound = apperr.New("audit", apperr.KindNotFound, "ENTRY_NOT_FOUND", "audit entry not found", nil)

// DefaultMaxEntries is the ring-buffer capacity used when MemoryStore is
// constructed without an explicit cap.
const DefaultMaxEntries = 10000

// MemoryStore is the memory-only Audit Log mode (spec §4.12): a ring
// buffer capped at maxEntries, oldest entries evicted first. Summaries
// are computed in-process on every Summary call.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	entries    []*Entry
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{maxEntries: maxEntries}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Append(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.entries = append(m.entries, e)
	if len(m.entries) > m.maxEntries {
		m.entries = m.entries[len(m.entries)-m.maxEntries:]
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (m *MemoryStore) Query(ctx context.Context, q Query) ([]*Entry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if matches(e, q) {
			matched = append(matched, e)
		}
	}

	// Newest first, matching the order SQLiteStore returns via ORDER BY
	// timestamp DESC.
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	total := int64(len(matched))
	start := (q.pageOrDefault() - 1) * q.pageSizeOrDefault()
	if start >= len(matched) {
		return []*Entry{}, total, nil
	}
	end := start + q.pageSizeOrDefault()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func matches(e *Entry, q Query) bool {
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.ActionType != "" && e.Action != q.ActionType {
		return false
	}
	if q.Since != nil && e.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && e.Timestamp.After(*q.Until) {
		return false
	}
	return true
}

func (m *MemoryStore) Summary(ctx context.Context) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := &Summary{
		TotalCount:     int64(len(m.entries)),
		CountsByAction: make(map[string]int64),
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	byDay := make(map[string]int64)
	var blocked []Entry

	for _, e := range m.entries {
		summary.CountsByAction[string(e.Action)]++
		if e.Timestamp.After(cutoff) {
			byDay[e.Timestamp.Format("2006-01-02")]++
		}
		if e.Action == ActionBlocked {
			blocked = append(blocked, *e)
		}
	}

	// m.entries is oldest-first; recent blocked entries are the tail.
	if len(blocked) > 20 {
		blocked = blocked[len(blocked)-20:]
	}
	summary.RecentBlocked = blocked

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		summary.CountsByDay = append(summary.CountsByDay, DayCount{Day: d, Count: byDay[d]})
	}

	return summary, nil
}
