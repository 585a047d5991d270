package attendance

import "time"

// Student is a student directory entry.
type Student struct {
	ID        string    `json:"student_id" validate:"required,max=64"`
	FirstName string    `json:"first_name" validate:"required,max=100"`
	LastName  string    `json:"last_name" validate:"required,max=100"`
	Email     string    `json:"email" validate:"required,email,institutional"`
	QRCode    string    `json:"qr_code,omitempty"` // reference to the issued QR image
	CreatedAt time.Time `json:"created_at"`
}

// Course is a course record with its roster.
type Course struct {
	ID           string    `json:"course_id"`
	Code         string    `json:"code" validate:"required,max=32"`
	Name         string    `json:"name" validate:"required,max=200"`
	SemesterID   string    `json:"semester_id" validate:"required"`
	TotalClasses int       `json:"total_classes" validate:"gte=0"`
	Roster       []string  `json:"roster"`
	CreatedAt    time.Time `json:"created_at"`
}

// Enrolled reports whether studentID is on the course roster.
func (c Course) Enrolled(studentID string) bool {
	for _, id := range c.Roster {
		if id == studentID {
			return true
		}
	}
	return false
}

// Semester is an instructor-owned date range that groups courses.
type Semester struct {
	ID           string    `json:"semester_id"`
	InstructorID string    `json:"instructor_id"`
	Name         string    `json:"name" validate:"required,max=100"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
}

// Overlaps treats both ranges as closed intervals.
func (s Semester) Overlaps(o Semester) bool {
	return !s.StartDate.After(o.EndDate) && !o.StartDate.After(s.EndDate)
}

// Event is one immutable entry in the attendance ledger.
//
// RecordedAt is the capture instant. Timestamp is the human-readable form
// rendered in the display zone; events imported from older data may carry
// only Timestamp.
type Event struct {
	ID         string    `json:"event_id"`
	StudentID  string    `json:"student_id"`
	CourseID   string    `json:"course_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Timestamp  string    `json:"timestamp"`
}

// Summary is the derived attendance view for one (student, course) pair.
type Summary struct {
	StudentID            string     `json:"student_id"`
	CourseID             string     `json:"course_id"`
	AttendedCount        int        `json:"attended_count"`
	RawCount             int        `json:"raw_count"`
	TotalClasses         int        `json:"total_classes"`
	AttendancePercentage int        `json:"attendance_percentage"`
	LastAttendedAt       *time.Time `json:"last_attended_at,omitempty"`
	LastAttended         string     `json:"last_attended"` // display form or "N/A"
}

// ReportRow is a Summary joined with directory details.
type ReportRow struct {
	Summary
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// WarningKind classifies non-fatal report conditions.
type WarningKind string

const (
	WarnUnresolvedStudent WarningKind = "unresolved_student"
)

// Warning describes a row that could not be built.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	StudentID string      `json:"student_id"`
	Detail    string      `json:"detail,omitempty"`
}

// Report is the course-level attendance report.
type Report struct {
	CourseID     string      `json:"course_id"`
	CourseCode   string      `json:"course_code"`
	CourseName   string      `json:"course_name"`
	TotalClasses int         `json:"total_classes"`
	Rows         []ReportRow `json:"rows"`
	Warnings     []Warning   `json:"warnings,omitempty"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

// SessionCount is the number of distinct students seen on one class date.
type SessionCount struct {
	Date     string `json:"date"` // YYYY-MM-DD in the display zone
	Attended int    `json:"attended"`
}
