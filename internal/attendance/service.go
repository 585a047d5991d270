package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"qrattend/internal/metrics"
)

// Deps wires a Service. Cache is optional.
type Deps struct {
	Registry *Registry
	Store    RegistryStore
	Ledger   Ledger
	Cache    SummaryCache
	Sessions *Sessions
	Location *time.Location
	Clock    func() time.Time
	Logger   zerolog.Logger
}

// Service is the instructor-facing entry point for scanning and reporting.
type Service struct {
	registry *Registry
	store    RegistryStore
	ledger   Ledger
	cache    SummaryCache
	sessions *Sessions
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Service{
		registry: d.Registry,
		store:    d.Store,
		ledger:   d.Ledger,
		cache:    d.Cache,
		sessions: d.Sessions,
		loc:      d.Location,
		now:      d.Clock,
		log:      d.Logger.With().Str("component", "attendance").Logger(),
	}
}

// --- scanning ---

// OpenScanSession starts scanning for a course the caller owns.
func (s *Service) OpenScanSession(ctx context.Context, instructorID, courseID string) (*ScanSession, error) {
	if _, err := s.registry.Course(ctx, instructorID, courseID); err != nil {
		return nil, err
	}
	return s.sessions.Open(courseID, instructorID), nil
}

// ScanFrame feeds one decoded frame to an open session.
func (s *Service) ScanFrame(ctx context.Context, instructorID, sessionID, raw string) (Outcome, error) {
	sess, err := s.session(instructorID, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	return sess.Process(ctx, raw), nil
}

// ScanSession returns an open session owned by the caller.
func (s *Service) ScanSession(instructorID, sessionID string) (*ScanSession, error) {
	return s.session(instructorID, sessionID)
}

func (s *Service) CloseScanSession(ctx context.Context, instructorID, sessionID string) error {
	if _, err := s.session(instructorID, sessionID); err != nil {
		return err
	}
	if !s.sessions.Close(ctx, sessionID) {
		return fmt.Errorf("scan session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (s *Service) session(instructorID, sessionID string) (*ScanSession, error) {
	sess := s.sessions.Get(sessionID)
	if sess == nil || sess.InstructorID != instructorID {
		return nil, fmt.Errorf("scan session %s: %w", sessionID, ErrNotFound)
	}
	return sess, nil
}

// --- reports ---

// StudentSummary returns the summary for one student, reading through the
// cache. Cached entries computed against a different class total are
// recomputed.
func (s *Service) StudentSummary(ctx context.Context, instructorID, courseID, studentID string) (Summary, error) {
	c, err := s.registry.Course(ctx, instructorID, courseID)
	if err != nil {
		return Summary{}, err
	}
	if _, err := s.registry.Student(ctx, studentID); err != nil {
		return Summary{}, err
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, courseID, studentID)
		switch {
		case err != nil:
			metrics.SummaryCache.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Str("course_id", courseID).Str("student_id", studentID).Msg("summary cache read failed")
		case cached != nil && cached.TotalClasses == c.TotalClasses:
			metrics.SummaryCache.WithLabelValues("hit").Inc()
			return *cached, nil
		default:
			metrics.SummaryCache.WithLabelValues("miss").Inc()
		}
	}
	return s.computeSummary(ctx, c, studentID)
}

// RefreshSummary recomputes and caches one summary without an ownership
// check. It is meant for background consumers.
func (s *Service) RefreshSummary(ctx context.Context, courseID, studentID string) (Summary, error) {
	c, err := s.store.LookupCourse(ctx, courseID)
	if err != nil {
		return Summary{}, fmt.Errorf("lookup course %s: %w", courseID, err)
	}
	if c == nil {
		return Summary{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return s.computeSummary(ctx, *c, studentID)
}

func (s *Service) computeSummary(ctx context.Context, c Course, studentID string) (Summary, error) {
	gen, cacheable := int64(0), s.cache != nil
	if cacheable {
		g, err := s.cache.Generation(ctx, c.ID, studentID)
		if err != nil {
			s.log.Warn().Err(err).Str("course_id", c.ID).Str("student_id", studentID).Msg("summary cache generation read failed")
		}
		gen, cacheable = g, err == nil
	}

	events, err := s.ledger.QueryEvents(ctx, EventQuery{CourseID: c.ID, StudentID: studentID})
	if err != nil {
		return Summary{}, fmt.Errorf("query events: %w", err)
	}
	sum := Summarize(studentID, c.ID, events, c.TotalClasses, s.loc)
	if cacheable {
		stored, err := s.cache.SetIfCurrent(ctx, sum, gen)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("course_id", c.ID).Str("student_id", studentID).Msg("summary cache write failed")
		case !stored:
			s.log.Debug().Str("course_id", c.ID).Str("student_id", studentID).Msg("summary changed while computing, not cached")
		}
	}
	return sum, nil
}

// CourseReport builds the report for every roster student. Students that
// cannot be resolved are listed as warnings and left out of the rows.
func (s *Service) CourseReport(ctx context.Context, instructorID, courseID string) (Report, error) {
	c, err := s.registry.Course(ctx, instructorID, courseID)
	if err != nil {
		return Report{}, err
	}
	events, err := s.ledger.QueryEvents(ctx, EventQuery{CourseID: courseID})
	if err != nil {
		return Report{}, fmt.Errorf("query events: %w", err)
	}

	students := make(map[string]Student, len(c.Roster))
	failed := make(map[string]string)
	for _, id := range c.Roster {
		st, err := s.store.LookupStudent(ctx, id)
		switch {
		case err != nil:
			failed[id] = err.Error()
		case st == nil:
			failed[id] = "student not found in directory"
		default:
			students[id] = *st
		}
	}

	r := BuildReport(c, students, events, s.loc, s.now())
	for i, w := range r.Warnings {
		if d, ok := failed[w.StudentID]; ok {
			r.Warnings[i].Detail = d
		}
	}
	if len(r.Warnings) > 0 {
		s.log.Warn().Str("course_id", courseID).Int("unresolved", len(r.Warnings)).Msg("report built with unresolved students")
	}
	return r, nil
}

// CourseAnalytics is the per-session attendance breakdown of a course.
type CourseAnalytics struct {
	CourseID     string         `json:"course_id"`
	TotalClasses int            `json:"total_classes"`
	Enrolled     int            `json:"enrolled"`
	TotalEvents  int            `json:"total_events"`
	Sessions     []SessionCount `json:"sessions"`
}

func (s *Service) Analytics(ctx context.Context, instructorID, courseID string) (CourseAnalytics, error) {
	c, err := s.registry.Course(ctx, instructorID, courseID)
	if err != nil {
		return CourseAnalytics{}, err
	}
	events, err := s.ledger.QueryEvents(ctx, EventQuery{CourseID: courseID})
	if err != nil {
		return CourseAnalytics{}, fmt.Errorf("query events: %w", err)
	}
	return CourseAnalytics{
		CourseID:     c.ID,
		TotalClasses: c.TotalClasses,
		Enrolled:     len(c.Roster),
		TotalEvents:  len(events),
		Sessions:     SessionCounts(events, s.loc),
	}, nil
}
