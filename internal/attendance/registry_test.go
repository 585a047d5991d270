package attendance_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/qrtoken"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRegistry_Semesters(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	_, err := f.registry.CreateSemester(f.ctx, instructor, attendance.Semester{
		Name: "Backwards", StartDate: date(2025, 5, 1), EndDate: date(2025, 1, 10),
	})
	assert.ErrorIs(t, err, attendance.ErrSemesterRange)

	_, err = f.registry.CreateSemester(f.ctx, instructor, attendance.Semester{
		Name: "Overlap", StartDate: date(2024, 12, 1), EndDate: date(2025, 1, 10),
	})
	assert.ErrorIs(t, err, attendance.ErrSemesterOverlap)

	// Another instructor's calendar is independent.
	_, err = f.registry.CreateSemester(f.ctx, "inst-2", attendance.Semester{
		Name: "Fall 2024", StartDate: date(2024, 8, 19), EndDate: date(2024, 12, 13),
	})
	require.NoError(t, err)

	spring, err := f.registry.CreateSemester(f.ctx, instructor, attendance.Semester{
		Name: "  Spring 2025 ", StartDate: date(2025, 1, 13), EndDate: date(2025, 5, 9),
	})
	require.NoError(t, err)
	assert.Equal(t, "Spring 2025", spring.Name)

	list, err := f.registry.ListSemesters(f.ctx, instructor)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Fall 2024", list[0].Name)

	// Updating a semester does not conflict with itself.
	spring.EndDate = date(2025, 5, 16)
	updated, err := f.registry.UpdateSemester(f.ctx, instructor, spring.ID, spring)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 5, 16), updated.EndDate)

	_, err = f.registry.UpdateSemester(f.ctx, "inst-2", spring.ID, spring)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestRegistry_SemesterValidation(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	_, err := f.registry.CreateSemester(f.ctx, instructor, attendance.Semester{StartDate: date(2026, 1, 1), EndDate: date(2026, 2, 1)})
	require.ErrorIs(t, err, attendance.ErrInvalidInput)

	var ve govalidator.ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve[0].Field())
}

func TestRegistry_ConcurrentOverlappingSemesters(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.registry.CreateSemester(f.ctx, instructor, attendance.Semester{
				Name: "Spring 2025", StartDate: date(2025, 1, 13), EndDate: date(2025, 5, 9),
			})
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, attendance.ErrSemesterOverlap)
	}
	assert.Equal(t, 1, created)

	sems, err := f.registry.ListSemesters(f.ctx, instructor)
	require.NoError(t, err)
	assert.Len(t, sems, 2)
}

func TestRegistry_Courses(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	_, err := f.registry.CreateCourse(f.ctx, "inst-2", attendance.Course{Code: "X", Name: "Y", SemesterID: f.course.SemesterID})
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	_, err = f.registry.Course(f.ctx, "inst-2", f.course.ID)
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	c, err := f.registry.SetTotalClasses(f.ctx, instructor, f.course.ID, 28)
	require.NoError(t, err)
	assert.Equal(t, 28, c.TotalClasses)

	_, err = f.registry.SetTotalClasses(f.ctx, instructor, f.course.ID, -1)
	assert.ErrorIs(t, err, attendance.ErrInvalidInput)

	list, err := f.registry.ListCourses(f.ctx, instructor, f.course.SemesterID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 28, list[0].TotalClasses)
	assert.NotNil(t, list[0].Roster)
}

func TestRegistry_RosterIsASet(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.student("a", false)
	f.student("b", false)

	added, err := f.registry.Enroll(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = f.registry.Enroll(f.ctx, instructor, f.course.ID, "a")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = f.registry.Enroll(f.ctx, instructor, f.course.ID, "ghost")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	_, err = f.registry.Enroll(f.ctx, instructor, f.course.ID, "b")
	require.NoError(t, err)

	// Saving course fields keeps the roster.
	_, err = f.registry.SetTotalClasses(f.ctx, instructor, f.course.ID, 5)
	require.NoError(t, err)

	students, err := f.registry.CourseStudents(f.ctx, instructor, f.course.ID)
	require.NoError(t, err)
	assert.Len(t, students, 2)

	require.NoError(t, f.registry.Unenroll(f.ctx, instructor, f.course.ID, "a"))
	require.NoError(t, f.registry.Unenroll(f.ctx, instructor, f.course.ID, "a"))
	c, err := f.registry.Course(f.ctx, instructor, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, c.Roster)
}

func TestRegistry_Students(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	st, err := f.registry.CreateStudent(f.ctx, attendance.Student{
		ID: " 900123 ", FirstName: "Ada", LastName: "Lovelace", Email: " ADA@pfw.EDU ", QRCode: "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "900123", st.ID)
	assert.Equal(t, "ada@pfw.edu", st.Email)
	assert.Empty(t, st.QRCode)
	assert.Equal(t, f.now, st.CreatedAt)

	_, err = f.registry.CreateStudent(f.ctx, st)
	assert.ErrorIs(t, err, attendance.ErrDuplicate)

	_, err = f.registry.CreateStudent(f.ctx, attendance.Student{ID: "2", FirstName: "A", LastName: "B", Email: "b@gmail.com"})
	var ve govalidator.ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "institutional", ve[0].Tag())

	f.now = f.now.Add(time.Hour)
	upd, err := f.registry.UpdateStudent(f.ctx, "900123", attendance.Student{FirstName: "Augusta", LastName: "King", Email: "ada@pfw.edu"})
	require.NoError(t, err)
	assert.Equal(t, "900123", upd.ID)
	assert.Equal(t, "Augusta", upd.FirstName)
	assert.Equal(t, st.CreatedAt, upd.CreatedAt)

	_, err = f.registry.UpdateStudent(f.ctx, "missing", upd)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

type fakeUploader struct {
	names []string
	err   error
}

func (u *fakeUploader) UploadPNG(_ context.Context, png []byte, name string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.names = append(u.names, name)
	return "https://cdn.example/" + name + ".png", nil
}

func TestRegistry_IssueQR(t *testing.T) {
	up := &fakeUploader{}
	f := newFixture(t, fixtureOpts{uploader: up})
	f.student("in", true)
	f.student("out", false)

	_, err := f.registry.IssueQR(f.ctx, instructor, f.course.ID, "out")
	assert.ErrorIs(t, err, attendance.ErrNotEnrolled)

	_, err = f.registry.IssueQR(f.ctx, "inst-2", f.course.ID, "in")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	qr, err := f.registry.IssueQR(f.ctx, instructor, f.course.ID, "in")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/"+f.course.ID+"_in.png", qr.Ref)
	assert.True(t, strings.HasPrefix(string(qr.PNG), "\x89PNG"))

	p, err := qrtoken.Decode(qr.Token)
	require.NoError(t, err)
	assert.Equal(t, "in", p.StudentID)
	assert.Equal(t, f.course.ID, p.CourseID)
	require.NotNil(t, p.IssuedAt)
	assert.True(t, f.now.Equal(*p.IssuedAt))

	st, err := f.registry.Student(f.ctx, "in")
	require.NoError(t, err)
	assert.Equal(t, qr.Ref, st.QRCode)

	// The issued token scans successfully.
	sess := f.sessions.Open(f.course.ID, instructor)
	assert.Equal(t, attendance.OutcomeRecorded, sess.Process(f.ctx, qr.Token).Kind)
}

func TestRegistry_IssueQRFallsBackToDataURL(t *testing.T) {
	f := newFixture(t, fixtureOpts{uploader: &fakeUploader{err: errors.New("cloud down")}})
	f.student("in", true)

	qr, err := f.registry.IssueQR(f.ctx, instructor, f.course.ID, "in")
	require.NoError(t, err)
	assert.Equal(t, qrtoken.DataURL(qr.PNG), qr.Ref)
}
