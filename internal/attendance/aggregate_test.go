package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		attended, total, want int
	}{
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5 rounds half up
		{3, 8, 38}, // 37.5
		{10, 10, 100},
		{5, 0, 0},
		{5, -1, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, attendance.Percentage(tc.attended, tc.total), "%d/%d", tc.attended, tc.total)
	}
}

func TestSummarize(t *testing.T) {
	loc := newYork(t)
	day := func(d int) time.Time { return time.Date(2024, 9, d, 15, 0, 0, 0, time.UTC) }

	events := []attendance.Event{
		{StudentID: "s1", CourseID: "c1", RecordedAt: day(3)},
		{StudentID: "s1", CourseID: "c1", RecordedAt: day(10)},
		{StudentID: "s1", CourseID: "c1", Timestamp: "September 5, 2024 at 11:00:00 AM EDT"},
		{StudentID: "s2", CourseID: "c1", RecordedAt: day(20)},
		{StudentID: "s1", CourseID: "c2", RecordedAt: day(21)},
	}

	t.Run("counts only the pair", func(t *testing.T) {
		s := attendance.Summarize("s1", "c1", events, 10, loc)
		assert.Equal(t, 3, s.RawCount)
		assert.Equal(t, 3, s.AttendedCount)
		assert.Equal(t, 30, s.AttendancePercentage)
		require.NotNil(t, s.LastAttendedAt)
		assert.True(t, day(10).Equal(*s.LastAttendedAt))
		assert.Equal(t, "September 10, 2024 at 11:00:00 AM EDT", s.LastAttended)
	})

	t.Run("attended is capped at total", func(t *testing.T) {
		s := attendance.Summarize("s1", "c1", events, 2, loc)
		assert.Equal(t, 3, s.RawCount)
		assert.Equal(t, 2, s.AttendedCount)
		assert.Equal(t, 100, s.AttendancePercentage)
	})

	t.Run("zero total", func(t *testing.T) {
		s := attendance.Summarize("s1", "c1", events, 0, loc)
		assert.Equal(t, 0, s.AttendedCount)
		assert.Equal(t, 0, s.AttendancePercentage)
	})

	t.Run("no events", func(t *testing.T) {
		s := attendance.Summarize("s3", "c1", events, 10, loc)
		assert.Equal(t, 0, s.RawCount)
		assert.Nil(t, s.LastAttendedAt)
		assert.Equal(t, attendance.NotAvailable, s.LastAttended)
	})

	t.Run("unparseable timestamps still count", func(t *testing.T) {
		s := attendance.Summarize("s4", "c1", []attendance.Event{
			{StudentID: "s4", CourseID: "c1", Timestamp: "sometime"},
		}, 10, loc)
		assert.Equal(t, 1, s.AttendedCount)
		assert.Equal(t, attendance.NotAvailable, s.LastAttended)
	})
}

func TestBuildReport(t *testing.T) {
	loc := newYork(t)
	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	course := attendance.Course{ID: "c1", Code: "CS 260", Name: "Data Structures", TotalClasses: 4, Roster: []string{"s2", "s1", "s1", "ghost"}}
	students := map[string]attendance.Student{
		"s1": {ID: "s1", FirstName: "Grace", LastName: "Hopper"},
		"s2": {ID: "s2", FirstName: "Ada", LastName: "Lovelace"},
	}
	events := []attendance.Event{
		{StudentID: "s1", CourseID: "c1", RecordedAt: now.Add(-time.Hour)},
		{StudentID: "s2", CourseID: "other", RecordedAt: now},
	}

	r := attendance.BuildReport(course, students, events, loc, now)

	require.Len(t, r.Rows, 2)
	assert.Equal(t, "Hopper", r.Rows[0].LastName)
	assert.Equal(t, 25, r.Rows[0].AttendancePercentage)
	assert.Equal(t, "Lovelace", r.Rows[1].LastName)
	assert.Equal(t, 0, r.Rows[1].AttendedCount)
	assert.Equal(t, []attendance.Warning{{Kind: attendance.WarnUnresolvedStudent, StudentID: "ghost"}}, r.Warnings)
	assert.Equal(t, now, r.GeneratedAt)
}

func TestSessionCounts(t *testing.T) {
	loc := newYork(t)
	events := []attendance.Event{
		{StudentID: "s1", RecordedAt: time.Date(2024, 9, 10, 14, 0, 0, 0, time.UTC)},
		{StudentID: "s1", RecordedAt: time.Date(2024, 9, 10, 15, 0, 0, 0, time.UTC)},
		{StudentID: "s2", RecordedAt: time.Date(2024, 9, 10, 16, 0, 0, 0, time.UTC)},
		// 01:00 UTC on the 12th is still the 11th in New York.
		{StudentID: "s1", RecordedAt: time.Date(2024, 9, 12, 1, 0, 0, 0, time.UTC)},
		{StudentID: "s3", Timestamp: "unknown"},
	}

	assert.Equal(t, []attendance.SessionCount{
		{Date: "2024-09-10", Attended: 2},
		{Date: "2024-09-11", Attended: 1},
	}, attendance.SessionCounts(events, loc))
}

func TestSummarize_LastAttendedIgnoresInputOrder(t *testing.T) {
	loc := newYork(t)
	early := attendance.Event{StudentID: "s1", CourseID: "c1", Timestamp: "March 1, 2024 at 9:00:00 AM EST"}
	late := attendance.Event{StudentID: "s1", CourseID: "c1", Timestamp: "March 3, 2024 at 9:00:00 AM EST"}
	want := time.Date(2024, 3, 3, 14, 0, 0, 0, time.UTC)

	for _, events := range [][]attendance.Event{{early, late}, {late, early}} {
		s := attendance.Summarize("s1", "c1", events, 10, loc)
		require.NotNil(t, s.LastAttendedAt)
		assert.True(t, want.Equal(*s.LastAttendedAt), "got %s", s.LastAttendedAt)
	}
}

func TestSummarize_Scenarios(t *testing.T) {
	loc := newYork(t)

	t.Run("more raw events than classes", func(t *testing.T) {
		events := make([]attendance.Event, 12)
		for i := range events {
			events[i] = attendance.Event{StudentID: "S1", CourseID: "CS101", RecordedAt: time.Date(2024, 9, i+1, 14, 0, 0, 0, time.UTC)}
		}
		s := attendance.Summarize("S1", "CS101", events, 10, loc)
		assert.Equal(t, 12, s.RawCount)
		assert.Equal(t, 10, s.AttendedCount)
		assert.Equal(t, 100, s.AttendancePercentage)
	})

	t.Run("new course without classes", func(t *testing.T) {
		s := attendance.Summarize("S4", "CS101", nil, 0, loc)
		assert.Equal(t, 0, s.AttendedCount)
		assert.Equal(t, 0, s.AttendancePercentage)
		assert.Equal(t, attendance.NotAvailable, s.LastAttended)
	})
}
