// Package postgres persists the directory, registry and attendance ledger in
// Postgres through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"qrattend/internal/attendance"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgExclusionViolation  = "23P01"
)

// Repository implements attendance.RegistryStore and attendance.Ledger.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// --- students ---

func (r *Repository) LookupStudent(ctx context.Context, studentID string) (*attendance.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, first_name, last_name, email, qr_code, created_at
		FROM students WHERE student_id = $1
	`, studentID)
	var s attendance.Student
	if err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.QRCode, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CreateStudent inserts a new student; an existing id or email yields
// attendance.ErrDuplicate.
func (r *Repository) CreateStudent(ctx context.Context, s attendance.Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, first_name, last_name, email, qr_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.FirstName, s.LastName, s.Email, s.QRCode, s.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return attendance.ErrDuplicate
	}
	return err
}

// SaveStudent creates or updates a student.
func (r *Repository) SaveStudent(ctx context.Context, s attendance.Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, first_name, last_name, email, qr_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			qr_code = EXCLUDED.qr_code,
			updated_at = NOW()
	`, s.ID, s.FirstName, s.LastName, s.Email, s.QRCode, s.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return attendance.ErrDuplicate
	}
	return err
}

// --- semesters ---

func (r *Repository) LookupSemester(ctx context.Context, semesterID string) (*attendance.Semester, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, instructor_id, name, start_date, end_date, created_at
		FROM semesters WHERE id = $1
	`, semesterID)
	var s attendance.Semester
	if err := row.Scan(&s.ID, &s.InstructorID, &s.Name, &s.StartDate, &s.EndDate, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) ListSemesters(ctx context.Context, instructorID string) ([]attendance.Semester, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instructor_id, name, start_date, end_date, created_at
		FROM semesters
		WHERE instructor_id = $1
		ORDER BY start_date
	`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []attendance.Semester
	for rows.Next() {
		var s attendance.Semester
		if err := rows.Scan(&s.ID, &s.InstructorID, &s.Name, &s.StartDate, &s.EndDate, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repository) SaveSemester(ctx context.Context, s attendance.Semester) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO semesters (id, instructor_id, name, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date
	`, s.ID, s.InstructorID, s.Name, s.StartDate, s.EndDate, s.CreatedAt)
	if pgCode(err) == pgExclusionViolation {
		return attendance.ErrSemesterOverlap
	}
	return err
}

// --- courses ---

func (r *Repository) LookupCourse(ctx context.Context, courseID string) (*attendance.Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, semester_id, total_classes, created_at
		FROM courses WHERE id = $1
	`, courseID)
	var c attendance.Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.SemesterID, &c.TotalClasses, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	roster, err := r.ListRoster(ctx, courseID)
	if err != nil {
		return nil, err
	}
	c.Roster = roster
	return &c, nil
}

func (r *Repository) ListRoster(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM course_roster
		WHERE course_id = $1
		ORDER BY enrolled_at, student_id
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// SaveCourse upserts course fields. The roster is managed separately.
func (r *Repository) SaveCourse(ctx context.Context, c attendance.Course) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (id, code, name, semester_id, total_classes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			total_classes = EXCLUDED.total_classes
	`, c.ID, c.Code, c.Name, c.SemesterID, c.TotalClasses, c.CreatedAt)
	return err
}

func (r *Repository) ListCourses(ctx context.Context, semesterID string) ([]attendance.Course, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.code, c.name, c.semester_id, c.total_classes, c.created_at,
		       COALESCE(array_to_string(array_agg(cr.student_id ORDER BY cr.enrolled_at, cr.student_id)
		                FILTER (WHERE cr.student_id IS NOT NULL), ','), '')
		FROM courses c
		LEFT JOIN course_roster cr ON cr.course_id = c.id
		WHERE c.semester_id = $1
		GROUP BY c.id
		ORDER BY c.code
	`, semesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []attendance.Course
	for rows.Next() {
		var c attendance.Course
		var roster string
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.SemesterID, &c.TotalClasses, &c.CreatedAt, &roster); err != nil {
			return nil, err
		}
		c.Roster = []string{}
		if roster != "" {
			c.Roster = strings.Split(roster, ",")
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repository) AddToRoster(ctx context.Context, courseID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO course_roster (course_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, courseID, studentID)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return false, attendance.ErrNotFound
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) RemoveFromRoster(ctx context.Context, courseID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM course_roster WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	return err
}

// --- ledger ---

// AppendEvent writes a new event.
func (r *Repository) AppendEvent(ctx context.Context, evt attendance.Event) (string, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.RecordedAt.IsZero() {
		evt.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, student_id, course_id, recorded_at, display_ts)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.ID, evt.StudentID, evt.CourseID, evt.RecordedAt, evt.Timestamp)
	if err != nil {
		return "", err
	}
	return evt.ID, nil
}

// QueryEvents returns events with basic filters, oldest first.
func (r *Repository) QueryEvents(ctx context.Context, q attendance.EventQuery) ([]attendance.Event, error) {
	query := `SELECT id, student_id, course_id, recorded_at, display_ts FROM attendance_events`
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, clause+" $"+strconv.Itoa(len(args)))
	}
	if q.CourseID != "" {
		add("course_id =", q.CourseID)
	}
	if q.StudentID != "" {
		add("student_id =", q.StudentID)
	}
	if !q.Since.IsZero() {
		add("recorded_at >=", q.Since)
	}
	if !q.Until.IsZero() {
		add("recorded_at <", q.Until)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY recorded_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []attendance.Event
	for rows.Next() {
		var evt attendance.Event
		if err := rows.Scan(&evt.ID, &evt.StudentID, &evt.CourseID, &evt.RecordedAt, &evt.Timestamp); err != nil {
			return nil, err
		}
		evt.RecordedAt = evt.RecordedAt.UTC()
		res = append(res, evt)
	}
	return res, rows.Err()
}
