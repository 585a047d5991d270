package attendance

import (
	"context"
	"fmt"
	"slices"
	"time"

	"qrattend/internal/qrtoken"
)

// Policy holds the optional scan checks. The zero value accepts any known
// student regardless of enrollment or token age.
type Policy struct {
	RequireEnrollment bool
	// MaxTokenAge rejects tokens issued longer ago than this; tokens without
	// an issue time are rejected too. Zero disables the check.
	MaxTokenAge time.Duration
}

// ValidatedScan is a scan that passed validation and is ready to record.
type ValidatedScan struct {
	StudentID    string
	CourseID     string
	StudentEmail string
}

// Validator checks decoded payloads against the active course and the
// student directory. It never writes.
type Validator struct {
	dir    Directory
	policy Policy
	now    func() time.Time
}

// NewValidator creates a validator. A nil clock means time.Now.
func NewValidator(dir Directory, policy Policy, clock func() time.Time) *Validator {
	if clock == nil {
		clock = time.Now
	}
	return &Validator{dir: dir, policy: policy, now: clock}
}

// Validate runs the checks in order; the first failure is returned.
func (v *Validator) Validate(ctx context.Context, p qrtoken.Payload, expectedCourseID string) (ValidatedScan, error) {
	if p.CourseID != expectedCourseID {
		return ValidatedScan{}, fmt.Errorf("%w: scanned %q, session expects %q", ErrCourseMismatch, p.CourseID, expectedCourseID)
	}

	st, err := v.dir.LookupStudent(ctx, p.StudentID)
	if err != nil {
		return ValidatedScan{}, fmt.Errorf("lookup student %s: %w", p.StudentID, err)
	}
	if st == nil {
		return ValidatedScan{}, fmt.Errorf("%w: %s", ErrUnknownStudent, p.StudentID)
	}

	if v.policy.RequireEnrollment {
		roster, err := v.dir.ListRoster(ctx, expectedCourseID)
		if err != nil {
			return ValidatedScan{}, fmt.Errorf("list roster %s: %w", expectedCourseID, err)
		}
		if !slices.Contains(roster, st.ID) {
			return ValidatedScan{}, fmt.Errorf("%w: %s", ErrNotEnrolled, st.ID)
		}
	}

	if v.policy.MaxTokenAge > 0 {
		if p.IssuedAt == nil || v.now().Sub(*p.IssuedAt) > v.policy.MaxTokenAge {
			return ValidatedScan{}, ErrTokenExpired
		}
	}

	return ValidatedScan{StudentID: st.ID, CourseID: expectedCourseID, StudentEmail: st.Email}, nil
}
