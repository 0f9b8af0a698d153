// Package data provides the database access layer for the console gateway.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/console-gate/internal/audit"
	"github.com/target/console-gate/internal/data/pgxutil"
	apperrors "github.com/target/console-gate/internal/errors"
)

const auditColumns = `id, occurred_at, event_type, subject, session_id, ip, success, reason, metadata`

// AuditRepo persists audit events to PostgreSQL. It implements audit.Sink:
// Emit is best effort and never fails the operation that produced the event.
// Wrap it in an audit.Dispatcher to keep inserts off the request path.
type AuditRepo struct {
	DB     *sql.DB
	Logger *slog.Logger
	clock  Clock
}

// NewAuditRepo creates a new AuditRepo with the given database connection.
func NewAuditRepo(db *sql.DB, logger *slog.Logger) *AuditRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRepo{DB: db, Logger: logger, clock: SystemClock{}}
}

var _ audit.Sink = (*AuditRepo)(nil)

// AuditRecord is an audit event as stored, with its assigned row identity.
type AuditRecord struct {
	ID         string            `json:"id" db:"id"`
	OccurredAt time.Time         `json:"occurred_at" db:"occurred_at"`
	EventType  string            `json:"event_type" db:"event_type"`
	Subject    string            `json:"subject" db:"subject"`
	SessionID  string            `json:"session_id" db:"session_id"`
	IP         string            `json:"ip" db:"ip"`
	Success    bool              `json:"success" db:"success"`
	Reason     string            `json:"reason" db:"reason"`
	Metadata   map[string]string `json:"metadata" db:"-"`

	RawMetadata []byte `json:"-" db:"metadata"`
}

// Emit stores the event, logging instead of failing when the insert does not
// go through.
func (r *AuditRepo) Emit(ctx context.Context, event audit.Event) {
	if err := r.Insert(ctx, event); err != nil {
		r.Logger.ErrorContext(ctx, "audit insert failed",
			"error", err, "event_type", event.Type, "subject", event.Subject)
	}
}

// Insert stores the event and returns the mapped database error, for callers
// that need the result.
func (r *AuditRepo) Insert(ctx context.Context, event audit.Event) error {
	occurredAt := event.Timestamp
	if occurredAt.IsZero() {
		occurredAt = r.clock.Now().UTC()
	}

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return apperrors.Internalf("marshal audit metadata: %v", err)
		}
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO auth_audit_events (occurred_at, event_type, subject, session_id, ip, success, reason, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, occurredAt, event.Type, event.Subject, event.SessionID, event.IP, event.Success, event.Reason, metadata)
		return execErr
	})
	return apperrors.MapDBError(err)
}

// AuditQuery filters ListRecent. Zero values mean "no filter".
type AuditQuery struct {
	Subject   string
	EventType string
	Since     time.Time
	Limit     int
}

const defaultAuditLimit = 100

// ListRecent returns matching events, newest first.
func (r *AuditRepo) ListRecent(ctx context.Context, q AuditQuery) ([]AuditRecord, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultAuditLimit
	}

	where := []string{"1=1"}
	args := []any{}
	if s := strings.TrimSpace(q.Subject); s != "" {
		args = append(args, s)
		where = append(where, "subject = $"+strconv.Itoa(len(args)))
	}
	if t := strings.TrimSpace(q.EventType); t != "" {
		args = append(args, t)
		where = append(where, "event_type = $"+strconv.Itoa(len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since.UTC())
		where = append(where, "occurred_at >= $"+strconv.Itoa(len(args)))
	}
	args = append(args, limit)

	query := `SELECT ` + auditColumns + ` FROM auth_audit_events WHERE ` +
		strings.Join(where, " AND ") +
		` ORDER BY occurred_at DESC LIMIT $` + strconv.Itoa(len(args))

	var records []AuditRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		var collectErr error
		records, collectErr = pgx.CollectRows(rows, pgx.RowToStructByName[AuditRecord])
		return collectErr
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	for i := range records {
		if len(records[i].RawMetadata) == 0 {
			continue
		}
		if err := json.Unmarshal(records[i].RawMetadata, &records[i].Metadata); err != nil {
			r.Logger.Warn("malformed audit metadata", "id", records[i].ID, "error", err)
		}
	}
	return records, nil
}

// CountFailuresSince reports how many failed events a subject accumulated in
// the window, for operator tooling investigating lockouts.
func (r *AuditRepo) CountFailuresSince(ctx context.Context, subject string, since time.Time) (int, error) {
	var count int
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT count(*) FROM auth_audit_events
			WHERE subject = $1 AND success = false AND occurred_at >= $2
		`, subject, since.UTC())
		return row.Scan(&count)
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return count, nil
}

// PurgeOlderThan deletes events past the retention horizon and reports how
// many rows went away.
func (r *AuditRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, `DELETE FROM auth_audit_events WHERE occurred_at < $1`, cutoff.UTC())
		if execErr != nil {
			return execErr
		}
		purged = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return purged, nil
}
