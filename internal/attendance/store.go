package attendance

import (
	"context"
	"time"
)

// Directory resolves students and courses. Lookups return (nil, nil) when
// the record does not exist.
type Directory interface {
	LookupStudent(ctx context.Context, studentID string) (*Student, error)
	LookupCourse(ctx context.Context, courseID string) (*Course, error)
	ListRoster(ctx context.Context, courseID string) ([]string, error)
}

// EventQuery filters ledger reads. Zero fields do not filter.
type EventQuery struct {
	CourseID  string
	StudentID string
	Since     time.Time
	Until     time.Time
}

// Matches reports whether e satisfies q.
func (q EventQuery) Matches(e Event) bool {
	if q.CourseID != "" && e.CourseID != q.CourseID {
		return false
	}
	if q.StudentID != "" && e.StudentID != q.StudentID {
		return false
	}
	if !q.Since.IsZero() && e.RecordedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !e.RecordedAt.Before(q.Until) {
		return false
	}
	return true
}

// Ledger is the append-only attendance event store.
type Ledger interface {
	AppendEvent(ctx context.Context, evt Event) (string, error)
	QueryEvents(ctx context.Context, q EventQuery) ([]Event, error)
}

// RegistryStore persists the mutable records behind the Directory.
type RegistryStore interface {
	Directory

	SaveStudent(ctx context.Context, s Student) error
	CreateStudent(ctx context.Context, s Student) error

	LookupSemester(ctx context.Context, semesterID string) (*Semester, error)
	ListSemesters(ctx context.Context, instructorID string) ([]Semester, error)
	SaveSemester(ctx context.Context, s Semester) error

	SaveCourse(ctx context.Context, c Course) error
	ListCourses(ctx context.Context, semesterID string) ([]Course, error)
	AddToRoster(ctx context.Context, courseID, studentID string) (bool, error)
	RemoveFromRoster(ctx context.Context, courseID, studentID string) error
}

// SummaryCache stores derived summaries. Implementations must treat a miss
// as (nil, nil).
//
// Each pair carries a generation that Invalidate advances. A summary is
// stored only if the generation read before its events were queried is
// still current, so a fill racing a new event never outlives the event.
type SummaryCache interface {
	Get(ctx context.Context, courseID, studentID string) (*Summary, error)
	Generation(ctx context.Context, courseID, studentID string) (int64, error)
	SetIfCurrent(ctx context.Context, s Summary, gen int64) (bool, error)
	Invalidate(ctx context.Context, courseID, studentID string) error
}
