package attendance

import "errors"

// Scan path.
var (
	ErrCourseMismatch = errors.New("qr code belongs to a different course")
	ErrUnknownStudent = errors.New("student not found in directory")
	ErrNotEnrolled    = errors.New("student is not enrolled in this course")
	ErrTokenExpired   = errors.New("qr code has expired")
	ErrWriteFailed    = errors.New("attendance event could not be recorded")
)

// Registry and reports.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSemesterRange   = errors.New("semester end date must be after start date")
	ErrSemesterOverlap = errors.New("semester overlaps an existing semester")
	ErrDuplicate       = errors.New("record already exists")
	ErrSessionClosed   = errors.New("scan session is closed")
)
