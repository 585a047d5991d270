package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/attendance"
)

// Ledger implements attendance.Ledger on SQLite. Instants are stored as
// unix milliseconds.
type Ledger struct {
	db     *sql.DB
	writer *Worker
}

func NewLedger(db *sql.DB, writer *Worker) *Ledger {
	return &Ledger{db: db, writer: writer}
}

func (l *Ledger) AppendEvent(ctx context.Context, evt attendance.Event) (string, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.RecordedAt.IsZero() {
		evt.RecordedAt = time.Now().UTC()
	}

	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_events(id, student_id, course_id, recorded_at_ms, display_ts)
VALUES (?, ?, ?, ?, ?);
`, evt.ID, evt.StudentID, evt.CourseID, evt.RecordedAt.UTC().UnixMilli(), evt.Timestamp); err != nil {
			return fmt.Errorf("AppendEvent insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return evt.ID, nil
}

func (l *Ledger) QueryEvents(ctx context.Context, q attendance.EventQuery) ([]attendance.Event, error) {
	query := `SELECT id, student_id, course_id, recorded_at_ms, display_ts FROM attendance_events`
	var clauses []string
	var args []any
	if q.CourseID != "" {
		clauses = append(clauses, "course_id = ?")
		args = append(args, q.CourseID)
	}
	if q.StudentID != "" {
		clauses = append(clauses, "student_id = ?")
		args = append(args, q.StudentID)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "recorded_at_ms >= ?")
		args = append(args, q.Since.UTC().UnixMilli())
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "recorded_at_ms < ?")
		args = append(args, q.Until.UTC().UnixMilli())
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY recorded_at_ms, id;"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryEvents: %w", err)
	}
	defer rows.Close()

	var out []attendance.Event
	for rows.Next() {
		var e attendance.Event
		var ms int64
		if err := rows.Scan(&e.ID, &e.StudentID, &e.CourseID, &ms, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("QueryEvents scan: %w", err)
		}
		e.RecordedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
