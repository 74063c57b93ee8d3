package calls

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NOTE: This repository assumes the call_history table created by the
// embedded migrations (see internal/calls/migrations).

// Dialect selects the placeholder style of the SQL driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLRepo stores call history in Postgres (pgx stdlib) or SQLite.
type SQLRepo struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLRepo(db *sql.DB, dialect Dialect) *SQLRepo {
	return &SQLRepo{db: db, dialect: dialect}
}

func (r *SQLRepo) Append(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	q := r.rebind(`
INSERT INTO call_history (
  id, call_id, caller, receiver, type, status, duration_seconds, end_reason, created_at
) VALUES (
  ?,?,?,?,?,?,?,?,?
)
`)
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.CallID,
		rec.Caller,
		rec.Receiver,
		string(rec.Type),
		string(rec.Status),
		rec.DurationSeconds,
		string(rec.EndReason),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("calls: insert history: %w", err)
	}
	return nil
}

func (r *SQLRepo) ListByUser(ctx context.Context, userID string, from, to time.Time, limit int) ([]Record, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	var b strings.Builder
	b.WriteString(`
SELECT id, call_id, caller, receiver, type, status, duration_seconds, end_reason, created_at
FROM call_history
WHERE (caller = ? OR receiver = ?)`)
	args := []any{userID, userID}
	if !from.IsZero() {
		b.WriteString(` AND created_at >= ?`)
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		b.WriteString(` AND created_at < ?`)
		args = append(args, to.UTC())
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("calls: list history: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			rec                         Record
			typ, status, reason, callID sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&callID,
			&rec.Caller,
			&rec.Receiver,
			&typ,
			&status,
			&rec.DurationSeconds,
			&reason,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("calls: scan history: %w", err)
		}
		rec.CallID = callID.String
		rec.Type = Type(typ.String)
		rec.Status = Outcome(status.String)
		rec.EndReason = EndReason(reason.String)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calls: iterate history: %w", err)
	}
	return out, nil
}

func (r *SQLRepo) CountMissed(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidRequest
	}
	q := r.rebind(`
SELECT COUNT(*)
FROM call_history
WHERE receiver = ? AND status = ?
`)
	var n int
	if err := r.db.QueryRowContext(ctx, q, userID, string(OutcomeMissed)).Scan(&n); err != nil {
		return 0, fmt.Errorf("calls: count missed: %w", err)
	}
	return n, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *SQLRepo) rebind(q string) string {
	if r.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
