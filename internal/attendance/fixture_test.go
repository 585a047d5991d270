package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/qrtoken"
	"qrattend/internal/store/memory"
	"qrattend/internal/validator"
)

const instructor = "inst-1"

type fixture struct {
	t        *testing.T
	ctx      context.Context
	now      time.Time
	store    *memory.Store
	ledger   *memory.Ledger
	cache    *memory.SummaryCache
	notes    *notes
	pub      *publisher
	registry *attendance.Registry
	sessions *attendance.Sessions
	svc      *attendance.Service
	course   attendance.Course
}

type fixtureOpts struct {
	policy   attendance.Policy
	uploader attendance.ImageUploader
	guards   attendance.GuardFactory
}

type notes struct {
	mu  sync.Mutex
	all []attendance.Notification
}

func (n *notes) Notify(_ context.Context, note attendance.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, note)
}

func (n *notes) list() []attendance.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]attendance.Notification(nil), n.all...)
}

type publisher struct {
	mu     sync.Mutex
	events []attendance.Event
}

func (p *publisher) PublishRecorded(_ context.Context, evt attendance.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		now:    time.Date(2024, 9, 10, 14, 0, 0, 0, time.UTC),
		store:  memory.New(),
		ledger: memory.NewLedger(),
		cache:  memory.NewSummaryCache(),
		notes:  &notes{},
		pub:    &publisher{},
	}
	clock := func() time.Time { return f.now }
	loc := newYork(t)
	log := zerolog.Nop()

	f.registry = attendance.NewRegistry(attendance.RegistryDeps{
		Store:    f.store,
		Validate: validator.New("pfw.edu"),
		Uploader: opts.uploader,
		Clock:    clock,
		Logger:   log,
	})
	rec := attendance.NewRecorder(attendance.RecorderDeps{
		Ledger:    f.ledger,
		Cache:     f.cache,
		Publisher: f.pub,
		Location:  loc,
		Clock:     clock,
		Logger:    log,
	})
	f.sessions = attendance.NewSessions(attendance.SessionDeps{
		Directory: f.store,
		Policy:    opts.policy,
		Guards:    opts.guards,
		Recorder:  rec,
		Notifier:  f.notes,
		TTL:       time.Hour,
		Clock:     clock,
		Logger:    log,
	})
	f.svc = attendance.NewService(attendance.Deps{
		Registry: f.registry,
		Store:    f.store,
		Ledger:   f.ledger,
		Cache:    f.cache,
		Sessions: f.sessions,
		Location: loc,
		Clock:    clock,
		Logger:   log,
	})

	sem, err := f.registry.CreateSemester(f.ctx, instructor, attendance.Semester{
		Name:      "Fall 2024",
		StartDate: time.Date(2024, 8, 19, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	f.course, err = f.registry.CreateCourse(f.ctx, instructor, attendance.Course{
		Code: "CS 260", Name: "Data Structures", SemesterID: sem.ID, TotalClasses: 3,
	})
	require.NoError(t, err)
	return f
}

// student creates a directory entry and optionally enrolls it.
func (f *fixture) student(id string, enroll bool) attendance.Student {
	f.t.Helper()
	st, err := f.registry.CreateStudent(f.ctx, attendance.Student{
		ID: id, FirstName: "First" + id, LastName: "Last" + id, Email: id + "@pfw.edu",
	})
	require.NoError(f.t, err)
	if enroll {
		_, err := f.registry.Enroll(f.ctx, instructor, f.course.ID, id)
		require.NoError(f.t, err)
	}
	return st
}

func (f *fixture) token(studentID, courseID string, issued time.Time) string {
	f.t.Helper()
	tok, err := qrtoken.Encode(qrtoken.Holder{StudentID: studentID, Email: studentID + "@pfw.edu"}, courseID, issued)
	require.NoError(f.t, err)
	return tok
}
