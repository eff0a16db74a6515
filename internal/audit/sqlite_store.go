package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the persistent Audit Log mode (spec §4.12): a durable
// table indexed by timestamp, actor_id, and action, mirrored by a
// capped in-memory cache so recent-entry reads and the live summary
// avoid a round trip to sqlite. The single-writer invariant is enforced
// at the connection-pool level, matching internal/approval.SQLiteStore
// and internal/gatewaydb.Store.
type SQLiteStore struct {
	db *sql.DB

	cacheMu    sync.Mutex
	cache      []*Entry
	maxEntries int
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(ctx context.Context, path string, maxCacheEntries int) (*SQLiteStore, error) {
	if maxCacheEntries <= 0 {
		maxCacheEntries = DefaultMaxEntries
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &SQLiteStore{db: db, maxEntries: maxCacheEntries}
	if err := s.warmCache(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("warm cache: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) warmCache(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, action, actor_id, details_json, timestamp
		 FROM audit_log ORDER BY timestamp DESC LIMIT ?`, s.maxEntries)
	if err != nil {
		return err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Reverse to oldest-first, matching MemoryStore's cache ordering.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	s.cacheMu.Lock()
	s.cache = entries
	s.cacheMu.Unlock()
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, request_id, action, actor_id, details_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, nullableString(e.RequestID), string(e.Action), e.ActorID,
		nullableRaw(e.Details), formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	s.cacheMu.Lock()
	s.cache = append(s.cache, e)
	if len(s.cache) > s.maxEntries {
		s.cache = s.cache[len(s.cache)-s.maxEntries:]
	}
	s.cacheMu.Unlock()

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, action, actor_id, details_json, timestamp
		FROM audit_log WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]*Entry, int64, error) {
	where := "WHERE 1=1"
	args := make([]interface{}, 0, 6)

	if q.ActorID != "" {
		where += " AND actor_id = ?"
		args = append(args, q.ActorID)
	}
	if q.ActionType != "" {
		where += " AND action = ?"
		args = append(args, string(q.ActionType))
	}
	if q.Since != nil {
		where += " AND timestamp >= ?"
		args = append(args, formatTime(*q.Since))
	}
	if q.Until != nil {
		where += " AND timestamp <= ?"
		args = append(args, formatTime(*q.Until))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	offset := (q.pageOrDefault() - 1) * q.pageSizeOrDefault()
	pagedArgs := append(append([]interface{}{}, args...), q.pageSizeOrDefault(), offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, action, actor_id, details_json, timestamp
		 FROM audit_log `+where+` ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		pagedArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Summary recomputes its aggregates via SQL rather than the in-memory
// cache, since the full history may exceed the cache's cap (spec §4.12).
func (s *SQLiteStore) Summary(ctx context.Context) (*Summary, error) {
	summary := &Summary{CountsByAction: make(map[string]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&summary.TotalCount); err != nil {
		return nil, fmt.Errorf("count total: %w", err)
	}

	actionRows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM audit_log GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("count by action: %w", err)
	}
	defer actionRows.Close()
	for actionRows.Next() {
		var action string
		var count int64
		if err := actionRows.Scan(&action, &count); err != nil {
			return nil, err
		}
		summary.CountsByAction[action] = count
	}
	if err := actionRows.Err(); err != nil {
		return nil, err
	}

	cutoff := formatTime(time.Now().UTC().AddDate(0, 0, -30))
	dayRows, err := s.db.QueryContext(ctx, `
		SELECT substr(timestamp, 1, 10) AS day, COUNT(*)
		FROM audit_log WHERE timestamp >= ?
		GROUP BY day ORDER BY day ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("count by day: %w", err)
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var dc DayCount
		if err := dayRows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		summary.CountsByDay = append(summary.CountsByDay, dc)
	}
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	blockedRows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, action, actor_id, details_json, timestamp
		FROM audit_log WHERE action = ? ORDER BY timestamp DESC LIMIT 20`, string(ActionBlocked))
	if err != nil {
		return nil, fmt.Errorf("recent blocked: %w", err)
	}
	defer blockedRows.Close()
	for blockedRows.Next() {
		e, err := scanEntry(blockedRows)
		if err != nil {
			return nil, err
		}
		summary.RecentBlocked = append(summary.RecentBlocked, *e)
	}

	return summary, blockedRows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	e := &Entry{}
	var requestID, details sql.NullString
	var ts string

	if err := row.Scan(&e.ID, &requestID, &e.Action, &e.ActorID, &details, &ts); err != nil {
		return nil, err
	}
	if requestID.Valid {
		e.RequestID = requestID.String
	}
	if details.Valid {
		e.Details = []byte(details.String)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	e.Timestamp = parsed
	return e, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableRaw(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
