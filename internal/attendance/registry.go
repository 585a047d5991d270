package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qrattend/internal/qrtoken"
)

// StructValidator checks struct tags. *validator.Validate satisfies it.
type StructValidator interface {
	StructCtx(ctx context.Context, s any) error
}

// ImageUploader stores a rendered QR image and returns its public URL.
type ImageUploader interface {
	UploadPNG(ctx context.Context, png []byte, name string) (string, error)
}

// RegistryDeps wires a Registry. Uploader is optional; without it issued QR
// codes are stored as data URLs.
type RegistryDeps struct {
	Store    RegistryStore
	Validate StructValidator
	Uploader ImageUploader
	QRSize   int
	Clock    func() time.Time
	Logger   zerolog.Logger
}

// Registry manages semesters, courses, rosters and students. Every course
// and semester operation takes the caller's instructor id; records owned by
// someone else read as ErrNotFound.
type Registry struct {
	store    RegistryStore
	validate StructValidator
	uploader ImageUploader
	qrSize   int
	now      func() time.Time
	log      zerolog.Logger
}

func NewRegistry(d RegistryDeps) *Registry {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.QRSize <= 0 {
		d.QRSize = qrtoken.DefaultImageSize
	}
	return &Registry{
		store:    d.Store,
		validate: d.Validate,
		uploader: d.Uploader,
		qrSize:   d.QRSize,
		now:      d.Clock,
		log:      d.Logger.With().Str("component", "registry").Logger(),
	}
}

func (r *Registry) check(ctx context.Context, v any) error {
	if r.validate == nil {
		return nil
	}
	if err := r.validate.StructCtx(ctx, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// --- semesters ---

func (r *Registry) CreateSemester(ctx context.Context, instructorID string, in Semester) (Semester, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.InstructorID = instructorID
	if err := r.checkSemester(ctx, in); err != nil {
		return Semester{}, err
	}
	in.ID = uuid.NewString()
	in.CreatedAt = r.now().UTC()
	if err := r.store.SaveSemester(ctx, in); err != nil {
		return Semester{}, fmt.Errorf("save semester: %w", err)
	}
	return in, nil
}

func (r *Registry) UpdateSemester(ctx context.Context, instructorID, semesterID string, in Semester) (Semester, error) {
	cur, err := r.ownedSemester(ctx, instructorID, semesterID)
	if err != nil {
		return Semester{}, err
	}
	cur.Name = strings.TrimSpace(in.Name)
	cur.StartDate = in.StartDate
	cur.EndDate = in.EndDate
	if err := r.checkSemester(ctx, cur); err != nil {
		return Semester{}, err
	}
	if err := r.store.SaveSemester(ctx, cur); err != nil {
		return Semester{}, fmt.Errorf("save semester: %w", err)
	}
	return cur, nil
}

func (r *Registry) ListSemesters(ctx context.Context, instructorID string) ([]Semester, error) {
	return r.store.ListSemesters(ctx, instructorID)
}

func (r *Registry) checkSemester(ctx context.Context, s Semester) error {
	if err := r.check(ctx, s); err != nil {
		return err
	}
	if !s.EndDate.After(s.StartDate) {
		return ErrSemesterRange
	}
	existing, err := r.store.ListSemesters(ctx, s.InstructorID)
	if err != nil {
		return fmt.Errorf("list semesters: %w", err)
	}
	for _, o := range existing {
		if o.ID != s.ID && s.Overlaps(o) {
			return fmt.Errorf("%w: %s", ErrSemesterOverlap, o.Name)
		}
	}
	return nil
}

func (r *Registry) ownedSemester(ctx context.Context, instructorID, semesterID string) (Semester, error) {
	s, err := r.store.LookupSemester(ctx, semesterID)
	if err != nil {
		return Semester{}, fmt.Errorf("lookup semester %s: %w", semesterID, err)
	}
	if s == nil || s.InstructorID != instructorID {
		return Semester{}, fmt.Errorf("semester %s: %w", semesterID, ErrNotFound)
	}
	return *s, nil
}

// --- courses ---

func (r *Registry) CreateCourse(ctx context.Context, instructorID string, in Course) (Course, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := r.check(ctx, in); err != nil {
		return Course{}, err
	}
	if _, err := r.ownedSemester(ctx, instructorID, in.SemesterID); err != nil {
		return Course{}, err
	}
	in.ID = uuid.NewString()
	in.Roster = []string{}
	in.CreatedAt = r.now().UTC()
	if err := r.store.SaveCourse(ctx, in); err != nil {
		return Course{}, fmt.Errorf("save course: %w", err)
	}
	return in, nil
}

func (r *Registry) ListCourses(ctx context.Context, instructorID, semesterID string) ([]Course, error) {
	if _, err := r.ownedSemester(ctx, instructorID, semesterID); err != nil {
		return nil, err
	}
	return r.store.ListCourses(ctx, semesterID)
}

// Course returns the course if the caller owns it.
func (r *Registry) Course(ctx context.Context, instructorID, courseID string) (Course, error) {
	return r.ownedCourse(ctx, instructorID, courseID)
}

func (r *Registry) SetTotalClasses(ctx context.Context, instructorID, courseID string, total int) (Course, error) {
	if total < 0 {
		return Course{}, fmt.Errorf("%w: total classes must be >= 0", ErrInvalidInput)
	}
	c, err := r.ownedCourse(ctx, instructorID, courseID)
	if err != nil {
		return Course{}, err
	}
	c.TotalClasses = total
	if err := r.store.SaveCourse(ctx, c); err != nil {
		return Course{}, fmt.Errorf("save course: %w", err)
	}
	return c, nil
}

// Enroll adds studentID to the roster. added is false when the student was
// already enrolled.
func (r *Registry) Enroll(ctx context.Context, instructorID, courseID, studentID string) (added bool, err error) {
	if _, err := r.ownedCourse(ctx, instructorID, courseID); err != nil {
		return false, err
	}
	st, err := r.store.LookupStudent(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("lookup student %s: %w", studentID, err)
	}
	if st == nil {
		return false, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	return r.store.AddToRoster(ctx, courseID, studentID)
}

func (r *Registry) Unenroll(ctx context.Context, instructorID, courseID, studentID string) error {
	if _, err := r.ownedCourse(ctx, instructorID, courseID); err != nil {
		return err
	}
	return r.store.RemoveFromRoster(ctx, courseID, studentID)
}

// CourseStudents resolves the roster. Students missing from the directory
// are skipped.
func (r *Registry) CourseStudents(ctx context.Context, instructorID, courseID string) ([]Student, error) {
	c, err := r.ownedCourse(ctx, instructorID, courseID)
	if err != nil {
		return nil, err
	}
	out := make([]Student, 0, len(c.Roster))
	for _, id := range c.Roster {
		st, err := r.store.LookupStudent(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup student %s: %w", id, err)
		}
		if st != nil {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (r *Registry) ownedCourse(ctx context.Context, instructorID, courseID string) (Course, error) {
	c, err := r.store.LookupCourse(ctx, courseID)
	if err != nil {
		return Course{}, fmt.Errorf("lookup course %s: %w", courseID, err)
	}
	if c == nil {
		return Course{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	if _, err := r.ownedSemester(ctx, instructorID, c.SemesterID); err != nil {
		return Course{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return *c, nil
}

// --- students ---

func (r *Registry) CreateStudent(ctx context.Context, in Student) (Student, error) {
	in = normalizeStudent(in)
	in.QRCode = ""
	if err := r.check(ctx, in); err != nil {
		return Student{}, err
	}
	in.CreatedAt = r.now().UTC()
	if err := r.store.CreateStudent(ctx, in); err != nil {
		return Student{}, fmt.Errorf("create student: %w", err)
	}
	return in, nil
}

func (r *Registry) UpdateStudent(ctx context.Context, studentID string, in Student) (Student, error) {
	cur, err := r.store.LookupStudent(ctx, studentID)
	if err != nil {
		return Student{}, fmt.Errorf("lookup student %s: %w", studentID, err)
	}
	if cur == nil {
		return Student{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	in.ID = cur.ID
	in = normalizeStudent(in)
	in.QRCode = cur.QRCode
	in.CreatedAt = cur.CreatedAt
	if err := r.check(ctx, in); err != nil {
		return Student{}, err
	}
	if err := r.store.SaveStudent(ctx, in); err != nil {
		return Student{}, fmt.Errorf("save student: %w", err)
	}
	return in, nil
}

func (r *Registry) Student(ctx context.Context, studentID string) (Student, error) {
	st, err := r.store.LookupStudent(ctx, studentID)
	if err != nil {
		return Student{}, fmt.Errorf("lookup student %s: %w", studentID, err)
	}
	if st == nil {
		return Student{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	return *st, nil
}

func normalizeStudent(s Student) Student {
	s.ID = strings.TrimSpace(s.ID)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	return s
}

// --- QR issuance ---

// IssuedQR is a freshly issued QR code.
type IssuedQR struct {
	Token string `json:"token"`
	PNG   []byte `json:"-"`
	Ref   string `json:"qr_code"`
}

// IssueQR encodes a token for an enrolled student, renders it and stores
// the image reference on the student record.
func (r *Registry) IssueQR(ctx context.Context, instructorID, courseID, studentID string) (IssuedQR, error) {
	c, err := r.ownedCourse(ctx, instructorID, courseID)
	if err != nil {
		return IssuedQR{}, err
	}
	st, err := r.Student(ctx, studentID)
	if err != nil {
		return IssuedQR{}, err
	}
	if !c.Enrolled(st.ID) {
		return IssuedQR{}, fmt.Errorf("%w: %s", ErrNotEnrolled, st.ID)
	}

	token, err := qrtoken.Encode(qrtoken.Holder{StudentID: st.ID, Email: st.Email}, c.ID, r.now())
	if err != nil {
		return IssuedQR{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	png, err := qrtoken.RenderPNG(token, r.qrSize)
	if err != nil {
		return IssuedQR{}, fmt.Errorf("render qr: %w", err)
	}

	ref := qrtoken.DataURL(png)
	if r.uploader != nil {
		url, err := r.uploader.UploadPNG(ctx, png, fmt.Sprintf("%s_%s", c.ID, st.ID))
		if err != nil {
			r.log.Warn().Err(err).Str("student_id", st.ID).Msg("qr upload failed, storing data url")
		} else {
			ref = url
		}
	}

	st.QRCode = ref
	if err := r.store.SaveStudent(ctx, st); err != nil {
		return IssuedQR{}, fmt.Errorf("save student: %w", err)
	}
	return IssuedQR{Token: token, PNG: png, Ref: ref}, nil
}
