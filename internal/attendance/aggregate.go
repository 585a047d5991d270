package attendance

import (
	"sort"
	"strings"
	"time"
)

// Summarize folds the events of one (student, course) pair into a Summary.
// Events for other pairs are ignored. The attended count is capped at
// totalClasses; a non-positive totalClasses yields a 0 percentage.
func Summarize(studentID, courseID string, events []Event, totalClasses int, loc *time.Location) Summary {
	s := Summary{
		StudentID:    studentID,
		CourseID:     courseID,
		TotalClasses: totalClasses,
		LastAttended: NotAvailable,
	}

	var last time.Time
	found := false
	for _, e := range events {
		if e.StudentID != studentID || e.CourseID != courseID {
			continue
		}
		s.RawCount++
		if t, ok := e.instant(loc); ok && (!found || t.After(last)) {
			last, found = t, true
		}
	}

	s.AttendedCount = capCount(s.RawCount, totalClasses)
	s.AttendancePercentage = Percentage(s.AttendedCount, totalClasses)
	if found {
		if loc != nil {
			last = last.In(loc)
		}
		s.LastAttendedAt = &last
		s.LastAttended = FormatDisplay(last, loc)
	}
	return s
}

// Percentage is round-half-up(100 * attended / total), or 0 when total <= 0.
func Percentage(attended, total int) int {
	if total <= 0 || attended <= 0 {
		return 0
	}
	return (200*attended + total) / (2 * total)
}

func capCount(raw, total int) int {
	if total < 0 {
		total = 0
	}
	return min(raw, total)
}

// BuildReport produces one row per roster student. Students missing from
// students are left out of Rows and listed in Warnings.
func BuildReport(course Course, students map[string]Student, events []Event, loc *time.Location, now time.Time) Report {
	byStudent := make(map[string][]Event)
	for _, e := range events {
		if e.CourseID == course.ID {
			byStudent[e.StudentID] = append(byStudent[e.StudentID], e)
		}
	}

	r := Report{
		CourseID:     course.ID,
		CourseCode:   course.Code,
		CourseName:   course.Name,
		TotalClasses: course.TotalClasses,
		Rows:         make([]ReportRow, 0, len(course.Roster)),
		GeneratedAt:  now,
	}
	seen := make(map[string]struct{}, len(course.Roster))
	for _, id := range course.Roster {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		st, ok := students[id]
		if !ok {
			r.Warnings = append(r.Warnings, Warning{Kind: WarnUnresolvedStudent, StudentID: id})
			continue
		}
		r.Rows = append(r.Rows, ReportRow{
			Summary:   Summarize(id, course.ID, byStudent[id], course.TotalClasses, loc),
			FirstName: st.FirstName,
			LastName:  st.LastName,
			Email:     st.Email,
		})
	}

	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if c := strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName)); c != 0 {
			return c < 0
		}
		if c := strings.Compare(strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)); c != 0 {
			return c < 0
		}
		return a.StudentID < b.StudentID
	})
	return r
}

// SessionCounts groups events by calendar date in loc and counts distinct
// students per date. Events whose time cannot be determined are skipped.
func SessionCounts(events []Event, loc *time.Location) []SessionCount {
	perDate := make(map[string]map[string]struct{})
	for _, e := range events {
		t, ok := e.instant(loc)
		if !ok {
			continue
		}
		key := DateKey(t, loc)
		if perDate[key] == nil {
			perDate[key] = make(map[string]struct{})
		}
		perDate[key][e.StudentID] = struct{}{}
	}

	out := make([]SessionCount, 0, len(perDate))
	for date, students := range perDate {
		out = append(out, SessionCount{Date: date, Attended: len(students)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
