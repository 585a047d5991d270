package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/store/memory"
)

func TestStore_RosterIsASet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.SaveCourse(ctx, attendance.Course{ID: "c1", Code: "CS1", SemesterID: "sem"}))

	added, err := s.AddToRoster(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddToRoster(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.False(t, added)

	roster, err := s.ListRoster(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, roster)

	require.NoError(t, s.RemoveFromRoster(ctx, "c1", "s1"))
	roster, _ = s.ListRoster(ctx, "c1")
	assert.Empty(t, roster)

	_, err = s.AddToRoster(ctx, "missing", "s1")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestStore_SaveSemesterRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	day := func(m, d int) time.Time { return time.Date(2024, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

	fall := attendance.Semester{ID: "fall", InstructorID: "i1", StartDate: day(8, 19), EndDate: day(12, 13)}
	require.NoError(t, s.SaveSemester(ctx, fall))

	fall.EndDate = day(12, 20)
	require.NoError(t, s.SaveSemester(ctx, fall), "updating itself is not an overlap")

	winter := attendance.Semester{ID: "winter", InstructorID: "i1", StartDate: day(12, 20), EndDate: day(12, 31)}
	assert.ErrorIs(t, s.SaveSemester(ctx, winter), attendance.ErrSemesterOverlap)

	winter.InstructorID = "i2"
	assert.NoError(t, s.SaveSemester(ctx, winter))
}

func TestStore_SaveCourseKeepsRoster(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.SaveCourse(ctx, attendance.Course{ID: "c1", TotalClasses: 10}))
	_, err := s.AddToRoster(ctx, "c1", "s1")
	require.NoError(t, err)

	require.NoError(t, s.SaveCourse(ctx, attendance.Course{ID: "c1", TotalClasses: 12}))
	c, err := s.LookupCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 12, c.TotalClasses)
	assert.Equal(t, []string{"s1"}, c.Roster)
}

func TestStore_LookupMissingIsNil(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	st, err := s.LookupStudent(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, st)

	c, err := s.LookupCourse(ctx, "nothing")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestStore_CreateStudentDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	st := attendance.Student{ID: "s1", Email: "a@pfw.edu"}
	require.NoError(t, s.CreateStudent(ctx, st))
	assert.ErrorIs(t, s.CreateStudent(ctx, st), attendance.ErrDuplicate)
}

func TestLedger_QueryFilters(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	base := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)

	for i, e := range []attendance.Event{
		{StudentID: "s1", CourseID: "c1", RecordedAt: base},
		{StudentID: "s2", CourseID: "c1", RecordedAt: base.Add(time.Hour)},
		{StudentID: "s1", CourseID: "c2", RecordedAt: base.Add(2 * time.Hour)},
	} {
		id, err := l.AppendEvent(ctx, e)
		require.NoError(t, err, "append %d", i)
		assert.NotEmpty(t, id)
	}

	got, err := l.QueryEvents(ctx, attendance.EventQuery{CourseID: "c1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = l.QueryEvents(ctx, attendance.EventQuery{StudentID: "s1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = l.QueryEvents(ctx, attendance.EventQuery{Since: base.Add(30 * time.Minute), Until: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s2", got[0].StudentID)
}

func TestSummaryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := memory.NewSummaryCache()

	got, err := c.Get(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	gen, err := c.Generation(ctx, "c1", "s1")
	require.NoError(t, err)
	stored, err := c.SetIfCurrent(ctx, attendance.Summary{CourseID: "c1", StudentID: "s1", AttendedCount: 3}, gen)
	require.NoError(t, err)
	assert.True(t, stored)
	got, err = c.Get(ctx, "c1", "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.AttendedCount)

	require.NoError(t, c.Invalidate(ctx, "c1", "s1"))
	got, _ = c.Get(ctx, "c1", "s1")
	assert.Nil(t, got)

	// A fill computed before the invalidation is refused.
	stored, err = c.SetIfCurrent(ctx, attendance.Summary{CourseID: "c1", StudentID: "s1", AttendedCount: 3}, gen)
	require.NoError(t, err)
	assert.False(t, stored)
	got, _ = c.Get(ctx, "c1", "s1")
	assert.Nil(t, got)
}
