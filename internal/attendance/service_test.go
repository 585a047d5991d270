package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/store/memory"
)

func TestService_StudentSummaryUsesCache(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", true)

	sum, err := f.svc.StudentSummary(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.AttendedCount)

	cached, err := f.cache.Get(f.ctx, f.course.ID, "a")
	require.NoError(t, err)
	require.NotNil(t, cached)

	// A fresh record invalidates the cached summary.
	sess := f.sessions.Open(f.course.ID, instructor)
	require.Equal(t, attendance.OutcomeRecorded, sess.Process(f.ctx, f.token("a", f.course.ID, f.now)).Kind)
	cached, err = f.cache.Get(f.ctx, f.course.ID, "a")
	require.NoError(t, err)
	assert.Nil(t, cached)

	sum, err = f.svc.StudentSummary(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AttendedCount)
	assert.Equal(t, 33, sum.AttendancePercentage)
}

func TestService_StudentSummaryRecomputesAfterTotalChange(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", true)

	stored, err := f.cache.SetIfCurrent(f.ctx, attendance.Summary{
		StudentID: "a", CourseID: f.course.ID, TotalClasses: f.course.TotalClasses, AttendedCount: 99,
	}, 0)
	require.NoError(t, err)
	require.True(t, stored)
	sum, err := f.svc.StudentSummary(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 99, sum.AttendedCount, "matching total is served from cache")

	_, err = f.registry.SetTotalClasses(f.ctx, instructor, f.course.ID, 10)
	require.NoError(t, err)
	sum, err = f.svc.StudentSummary(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.AttendedCount)
	assert.Equal(t, 10, sum.TotalClasses)
}

// interleavingLedger runs during once between reading events and
// returning them, like a scan landing mid-computation.
type interleavingLedger struct {
	*memory.Ledger
	once   sync.Once
	during func()
}

func (l *interleavingLedger) QueryEvents(ctx context.Context, q attendance.EventQuery) ([]attendance.Event, error) {
	events, err := l.Ledger.QueryEvents(ctx, q)
	if l.during != nil {
		l.once.Do(l.during)
	}
	return events, err
}

func TestService_StudentSummaryNotCachedAcrossConcurrentRecord(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", true)

	rec := attendance.NewRecorder(attendance.RecorderDeps{
		Ledger: f.ledger,
		Cache:  f.cache,
		Clock:  func() time.Time { return f.now },
		Logger: zerolog.Nop(),
	})
	ledger := &interleavingLedger{Ledger: f.ledger}
	ledger.during = func() {
		_, err := rec.Record(f.ctx, attendance.ValidatedScan{StudentID: "a", CourseID: f.course.ID})
		require.NoError(t, err)
	}
	svc := attendance.NewService(attendance.Deps{
		Registry: f.registry,
		Store:    f.store,
		Ledger:   ledger,
		Cache:    f.cache,
		Sessions: f.sessions,
		Location: newYork(t),
		Logger:   zerolog.Nop(),
	})

	first, err := svc.StudentSummary(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, first.RawCount, "computed from the events read before the record")

	cached, err := f.cache.Get(f.ctx, f.course.ID, "a")
	require.NoError(t, err)
	assert.Nil(t, cached, "summary older than the record must not be cached")

	second, err := svc.StudentSummary(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, second.RawCount)
	assert.Equal(t, 1, second.AttendedCount)
}

func TestService_StudentSummaryChecks(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", true)

	_, err := f.svc.StudentSummary(f.ctx, "inst-2", f.course.ID, "a")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	_, err = f.svc.StudentSummary(f.ctx, instructor, f.course.ID, "ghost")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestService_RefreshSummary(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", true)
	sess := f.sessions.Open(f.course.ID, instructor)
	sess.Process(f.ctx, f.token("a", f.course.ID, f.now))

	sum, err := f.svc.RefreshSummary(f.ctx, f.course.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AttendedCount)

	cached, err := f.cache.Get(f.ctx, f.course.ID, "a")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, sum, *cached)

	_, err = f.svc.RefreshSummary(f.ctx, "missing", "a")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

type flakyStore struct {
	*memory.Store
	failID string
}

func (s flakyStore) LookupStudent(ctx context.Context, id string) (*attendance.Student, error) {
	if id == s.failID {
		return nil, errors.New("directory timeout")
	}
	return s.Store.LookupStudent(ctx, id)
}

func TestService_CourseReportWarnings(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", true)
	f.student("b", true)
	sess := f.sessions.Open(f.course.ID, instructor)
	sess.Process(f.ctx, f.token("a", f.course.ID, f.now))

	svc := attendance.NewService(attendance.Deps{
		Registry: f.registry,
		Store:    flakyStore{Store: f.store, failID: "b"},
		Ledger:   f.ledger,
		Sessions: f.sessions,
		Clock:    func() time.Time { return f.now },
	})
	r, err := svc.CourseReport(f.ctx, instructor, f.course.ID)
	require.NoError(t, err)

	require.Len(t, r.Rows, 1)
	assert.Equal(t, "a", r.Rows[0].StudentID)
	assert.Equal(t, 1, r.Rows[0].AttendedCount)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "b", r.Warnings[0].StudentID)
	assert.Equal(t, "directory timeout", r.Warnings[0].Detail)
}

func TestService_Analytics(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", true)
	f.student("b", true)

	first := f.sessions.Open(f.course.ID, instructor)
	first.Process(f.ctx, f.token("a", f.course.ID, f.now))
	first.Process(f.ctx, f.token("b", f.course.ID, f.now))

	f.now = f.now.Add(48 * time.Hour)
	second := f.sessions.Open(f.course.ID, instructor)
	second.Process(f.ctx, f.token("a", f.course.ID, f.now))

	an, err := f.svc.Analytics(f.ctx, instructor, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, an.Enrolled)
	assert.Equal(t, 3, an.TotalEvents)
	assert.Equal(t, []attendance.SessionCount{
		{Date: "2024-09-10", Attended: 2},
		{Date: "2024-09-12", Attended: 1},
	}, an.Sessions)

	_, err = f.svc.Analytics(f.ctx, "inst-2", f.course.ID)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}
