package gatewaydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed User & Quota Store (spec §3.4, §4.13). The
// single-writer invariant is enforced at the connection-pool level, the
// same way internal/approval.SQLiteStore does it: the handle is opened
// with SetMaxOpenConns(1).
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) a sqlite database at path and
// applies pending migrations.
func NewStore(ctx context.Context, path string) (*Store, error) {
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

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateUser hashes password with bcrypt, inserts the user row, and
// seeds quota_limits from DefaultQuotaLimits.
func (s *Store) CreateUser(ctx context.Context, u *User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	rolesJSON, err := json.Marshal(u.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, roles_json, enabled, email,
			display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, string(rolesJSON), boolToInt(u.Enabled),
		nullableString(u.Email), nullableString(u.DisplayName),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("insert user: %w", err)
	}

	limits := DefaultQuotaLimits()
	if err := insertQuota(ctx, tx, u.ID, limits); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, selectUserSQL+" WHERE id = ?", id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, selectUserSQL+" WHERE username = ?", username)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, selectUserSQL+" ORDER BY username ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser applies the non-nil fields of update to the stored user.
func (s *Store) UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, selectUserSQL+" WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.DisplayName != nil {
		u.DisplayName = *update.DisplayName
	}
	if update.Roles != nil {
		u.Roles = update.Roles
	}
	if update.Enabled != nil {
		u.Enabled = *update.Enabled
	}
	u.UpdatedAt = time.Now().UTC()

	rolesJSON, err := json.Marshal(u.Roles)
	if err != nil {
		return nil, fmt.Errorf("marshal roles: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET email = ?, display_name = ?, roles_json = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		nullableString(u.Email), nullableString(u.DisplayName), string(rolesJSON),
		boolToInt(u.Enabled), formatTime(u.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM quota_limits WHERE user_id = ?`, id)
	return nil
}

// VerifyPassword looks up username, checks enabled, compares password
// against the stored bcrypt hash, and records last_login_at on success.
func (s *Store) VerifyPassword(ctx context.Context, username, password string) (*User, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		if err == ErrUserNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Enabled {
		return nil, ErrUserDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	_, _ = s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(now), u.ID)
	u.LastLoginAt = &now
	return u, nil
}

func (s *Store) GetQuotaLimits(ctx context.Context, userID string) (*QuotaLimits, error) {
	var q QuotaLimits
	err := s.db.QueryRowContext(ctx, `
		SELECT daily_input_tokens, daily_output_tokens, daily_requests,
		       monthly_input_tokens, monthly_output_tokens
		FROM quota_limits WHERE user_id = ?`, userID,
	).Scan(&q.DailyInputTokens, &q.DailyOutputTokens, &q.DailyRequests,
		&q.MonthlyInputTokens, &q.MonthlyOutputTokens)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) SetQuotaLimits(ctx context.Context, userID string, limits QuotaLimits) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quota_limits
		SET daily_input_tokens = ?, daily_output_tokens = ?, daily_requests = ?,
		    monthly_input_tokens = ?, monthly_output_tokens = ?
		WHERE user_id = ?`,
		limits.DailyInputTokens, limits.DailyOutputTokens, limits.DailyRequests,
		limits.MonthlyInputTokens, limits.MonthlyOutputTokens, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordUsage is called by the Proxy Dispatcher after each upstream
// request completes (spec §4.13), incrementing both the daily and
// monthly counters for the window containing time.Now().
func (s *Store) RecordUsage(ctx context.Context, userID string, inputTokens, outputTokens int64) error {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertUsage(ctx, tx, "usage_daily", "day_key", userID, dailyKey(now), inputTokens, outputTokens); err != nil {
		return err
	}
	if err := upsertUsage(ctx, tx, "usage_monthly", "month_key", userID, monthlyKey(now), inputTokens, outputTokens); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertUsage(ctx context.Context, tx *sql.Tx, table, keyCol, userID, key string, inputTokens, outputTokens int64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, %s, input_tokens, output_tokens, requests)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(user_id, %s) DO UPDATE SET
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			requests = requests + 1`, table, keyCol, keyCol),
		userID, key, inputTokens, outputTokens,
	)
	return err
}

// GetDailyUsage returns today's usage counters for userID.
func (s *Store) GetDailyUsage(ctx context.Context, userID string) (*UsageCounters, error) {
	return getUsage(ctx, s.db, "usage_daily", "day_key", userID, dailyKey(time.Now()))
}

// GetMonthlyUsage returns this month's usage counters for userID.
func (s *Store) GetMonthlyUsage(ctx context.Context, userID string) (*UsageCounters, error) {
	return getUsage(ctx, s.db, "usage_monthly", "month_key", userID, monthlyKey(time.Now()))
}

func getUsage(ctx context.Context, db *sql.DB, table, keyCol, userID, key string) (*UsageCounters, error) {
	var c UsageCounters
	err := db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT input_tokens, output_tokens, requests FROM %s WHERE user_id = ? AND %s = ?`, table, keyCol),
		userID, key,
	).Scan(&c.InputTokens, &c.OutputTokens, &c.Requests)
	if err == sql.ErrNoRows {
		return &UsageCounters{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CheckQuota reports whether userID may make another request, comparing
// current daily and monthly usage against its configured limits
// (spec §4.13). A false result with a non-empty reason identifies which
// limit was hit.
func (s *Store) CheckQuota(ctx context.Context, userID string) (bool, string, error) {
	limits, err := s.GetQuotaLimits(ctx, userID)
	if err != nil {
		return false, "", err
	}
	daily, err := s.GetDailyUsage(ctx, userID)
	if err != nil {
		return false, "", err
	}
	monthly, err := s.GetMonthlyUsage(ctx, userID)
	if err != nil {
		return false, "", err
	}

	switch {
	case daily.Requests >= limits.DailyRequests:
		return false, "daily request limit exceeded", nil
	case daily.InputTokens >= limits.DailyInputTokens:
		return false, "daily input token limit exceeded", nil
	case daily.OutputTokens >= limits.DailyOutputTokens:
		return false, "daily output token limit exceeded", nil
	case monthly.InputTokens >= limits.MonthlyInputTokens:
		return false, "monthly input token limit exceeded", nil
	case monthly.OutputTokens >= limits.MonthlyOutputTokens:
		return false, "monthly output token limit exceeded", nil
	}
	return true, "", nil
}

func insertQuota(ctx context.Context, tx *sql.Tx, userID string, limits QuotaLimits) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO quota_limits (user_id, daily_input_tokens, daily_output_tokens,
			daily_requests, monthly_input_tokens, monthly_output_tokens)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, limits.DailyInputTokens, limits.DailyOutputTokens, limits.DailyRequests,
		limits.MonthlyInputTokens, limits.MonthlyOutputTokens,
	)
	return err
}

const selectUserSQL = `
	SELECT id, username, password_hash, roles_json, enabled, email, display_name,
	       created_at, updated_at, last_login_at
	FROM users`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row *sql.Row) (*User, error) {
	return scanUserCommon(row)
}

func scanUserRows(rows *sql.Rows) (*User, error) {
	return scanUserCommon(rows)
}

func scanUserCommon(s rowScanner) (*User, error) {
	var (
		u                          User
		rolesJSON                  string
		enabledInt                 int
		email, displayName         sql.NullString
		createdAt, updatedAt       string
		lastLoginAt                sql.NullString
	)

	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &rolesJSON, &enabledInt,
		&email, &displayName, &createdAt, &updatedAt, &lastLoginAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Enabled = enabledInt != 0
	u.Email = email.String
	u.DisplayName = displayName.String

	if err := json.Unmarshal([]byte(rolesJSON), &u.Roles); err != nil {
		return nil, fmt.Errorf("unmarshal roles: %w", err)
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if lastLoginAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastLoginAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_login_at: %w", err)
		}
		u.LastLoginAt = &t
	}

	return &u, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
