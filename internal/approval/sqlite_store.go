package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the sqlite-backed Store (spec §4.1). The single-writer
// invariant is enforced at the connection-pool level: the handle is
// opened with SetMaxOpenConns(1), so the driver itself serializes every
// statement rather than relying on an application mutex.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if absent) a sqlite database at path and
// applies pending migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
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

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, req *Request) error {
	approversJSON, err := json.Marshal(req.Approvers)
	if err != nil {
		return fmt.Errorf("marshal approvers: %w", err)
	}
	approvalTypeJSON, err := json.Marshal(req.ApprovalType)
	if err != nil {
		return fmt.Errorf("marshal approval_type: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hitl_requests
			(id, status, requester, approvers_json, title, description, channel,
			 message_id, approval_type_json, metadata_json,
			 decided_by, decided_at, rejection_reason, cancelled_reason,
			 created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Status), req.Requester, string(approversJSON), req.Title,
		nullableString(req.Description), req.Channel, nullableString(req.MessageID),
		string(approvalTypeJSON), nullableRaw(req.Metadata),
		nullableString(req.DecidedBy), nullableTime(req.DecidedAt),
		nullableString(req.RejectionReason), nullableString(req.CancelledReason),
		formatTime(req.CreatedAt), formatTime(req.UpdatedAt), nullableTime(req.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	if err := insertAudit(ctx, tx, req.ID, ActionCreated, req.Requester, nil); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, selectRequestSQL+" WHERE id = ?", id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	return req, err
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status, decidedBy, reason string) (*Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, selectRequestSQL+" WHERE id = ?", id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	if req.IsTerminal() {
		return nil, ErrAlreadyTerminal
	}

	now := time.Now().UTC()
	req.Status = status
	req.UpdatedAt = now
	req.DecidedBy = decidedBy
	req.DecidedAt = &now
	var action AuditAction
	switch status {
	case StatusApproved:
		action = ActionApproved
	case StatusRejected:
		req.RejectionReason = reason
		action = ActionRejected
	case StatusCancelled:
		req.CancelledReason = reason
		action = ActionCancelled
	default:
		action = AuditAction(status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE hitl_requests
		SET status = ?, decided_by = ?, decided_at = ?, rejection_reason = ?,
		    cancelled_reason = ?, updated_at = ?
		WHERE id = ?`,
		string(req.Status), nullableString(req.DecidedBy), nullableTime(req.DecidedAt),
		nullableString(req.RejectionReason), nullableString(req.CancelledReason),
		formatTime(req.UpdatedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	var details json.RawMessage
	if reason != "" {
		details, _ = json.Marshal(map[string]string{"reason": reason})
	}
	if err := insertAudit(ctx, tx, id, action, decidedBy, details); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *SQLiteStore) UpdateMessageID(ctx context.Context, id, messageID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE hitl_requests SET message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("update message_id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRequestNotFound
	}

	if err := insertAudit(ctx, tx, id, ActionMessageSent, "system", nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListPending(ctx context.Context, approverID string) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRequestSQL+` WHERE status = ? ORDER BY created_at ASC`, string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		if approverID == "" || req.HasApprover(approverID) {
			out = append(out, req)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAuditLog(ctx context.Context, id string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, action, actor_id, details_json, timestamp
		FROM hitl_audit_log WHERE request_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var details sql.NullString
		var ts string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Action, &e.ActorID, &details, &ts); err != nil {
			return nil, err
		}
		if details.Valid {
			e.Details = json.RawMessage(details.String)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ResetToPending(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hitl_requests
		SET status = ?, decided_by = NULL, decided_at = NULL,
		    rejection_reason = NULL, cancelled_reason = NULL, updated_at = ?
		WHERE id = ?`,
		string(StatusPending), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, requestID string, action AuditAction, actorID string, details json.RawMessage) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO hitl_audit_log (request_id, action, actor_id, details_json, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		requestID, string(action), actorID, nullableRaw(details), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectRequestSQL = `
	SELECT id, status, requester, approvers_json, title, description, channel,
	       message_id, approval_type_json, metadata_json,
	       decided_by, decided_at, rejection_reason, cancelled_reason,
	       created_at, updated_at, expires_at
	FROM hitl_requests`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row *sql.Row) (*Request, error) {
	return scanRequestCommon(row)
}

func scanRequestRows(rows *sql.Rows) (*Request, error) {
	return scanRequestCommon(rows)
}

func scanRequestCommon(s rowScanner) (*Request, error) {
	var (
		req                                    Request
		statusStr                              string
		approversJSON, approvalTypeJSON        string
		description, messageID, metadataJSON   sql.NullString
		decidedBy, decidedAt                    sql.NullString
		rejectionReason, cancelledReason        sql.NullString
		createdAt, updatedAt                    string
		expiresAt                               sql.NullString
	)

	err := s.Scan(&req.ID, &statusStr, &req.Requester, &approversJSON, &req.Title,
		&description, &req.Channel, &messageID, &approvalTypeJSON, &metadataJSON,
		&decidedBy, &decidedAt, &rejectionReason, &cancelledReason,
		&createdAt, &updatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = Status(statusStr)
	req.Description = description.String
	req.MessageID = messageID.String
	req.DecidedBy = decidedBy.String
	req.RejectionReason = rejectionReason.String
	req.CancelledReason = cancelledReason.String

	if err := json.Unmarshal([]byte(approversJSON), &req.Approvers); err != nil {
		return nil, fmt.Errorf("unmarshal approvers: %w", err)
	}
	if err := json.Unmarshal([]byte(approvalTypeJSON), &req.ApprovalType); err != nil {
		return nil, fmt.Errorf("unmarshal approval_type: %w", err)
	}
	if metadataJSON.Valid {
		req.Metadata = json.RawMessage(metadataJSON.String)
	}

	if req.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if req.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
		req.ExpiresAt = &t
	}
	if decidedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, decidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse decided_at: %w", err)
		}
		req.DecidedAt = &t
	}

	return &req, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableRaw(r json.RawMessage) interface{} {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}
