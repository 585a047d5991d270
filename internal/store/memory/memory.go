// Package memory provides in-process stores for tests and local runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"qrattend/internal/attendance"
)

// Store keeps the directory, semesters and courses in maps.
type Store struct {
	mu        sync.RWMutex
	students  map[string]attendance.Student
	semesters map[string]attendance.Semester
	courses   map[string]attendance.Course
}

func New() *Store {
	return &Store{
		students:  make(map[string]attendance.Student),
		semesters: make(map[string]attendance.Semester),
		courses:   make(map[string]attendance.Course),
	}
}

func (s *Store) LookupStudent(_ context.Context, id string) (*attendance.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) LookupCourse(_ context.Context, id string) (*attendance.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, nil
	}
	c.Roster = slices.Clone(c.Roster)
	return &c, nil
}

func (s *Store) ListRoster(_ context.Context, courseID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.courses[courseID].Roster), nil
}

func (s *Store) SaveStudent(_ context.Context, st attendance.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
	return nil
}

func (s *Store) CreateStudent(_ context.Context, st attendance.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[st.ID]; ok {
		return attendance.ErrDuplicate
	}
	s.students[st.ID] = st
	return nil
}

func (s *Store) LookupSemester(_ context.Context, id string) (*attendance.Semester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sem, ok := s.semesters[id]
	if !ok {
		return nil, nil
	}
	return &sem, nil
}

func (s *Store) ListSemesters(_ context.Context, instructorID string) ([]attendance.Semester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Semester
	for _, sem := range s.semesters {
		if sem.InstructorID == instructorID {
			out = append(out, sem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// SaveSemester rejects a range overlapping another semester of the same
// instructor with attendance.ErrSemesterOverlap.
func (s *Store) SaveSemester(_ context.Context, sem attendance.Semester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.semesters {
		if id != sem.ID && o.InstructorID == sem.InstructorID && sem.Overlaps(o) {
			return attendance.ErrSemesterOverlap
		}
	}
	s.semesters[sem.ID] = sem
	return nil
}

// SaveCourse upserts course fields. The stored roster is kept; rosters only
// change through AddToRoster and RemoveFromRoster.
func (s *Store) SaveCourse(_ context.Context, c attendance.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.courses[c.ID]; ok {
		c.Roster = cur.Roster
	} else {
		c.Roster = slices.Clone(c.Roster)
	}
	s.courses[c.ID] = c
	return nil
}

func (s *Store) ListCourses(_ context.Context, semesterID string) ([]attendance.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []attendance.Course
	for _, c := range s.courses {
		if c.SemesterID == semesterID {
			c.Roster = slices.Clone(c.Roster)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) AddToRoster(_ context.Context, courseID, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return false, attendance.ErrNotFound
	}
	if slices.Contains(c.Roster, studentID) {
		return false, nil
	}
	c.Roster = append(slices.Clone(c.Roster), studentID)
	s.courses[courseID] = c
	return true, nil
}

func (s *Store) RemoveFromRoster(_ context.Context, courseID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return attendance.ErrNotFound
	}
	c.Roster = slices.DeleteFunc(slices.Clone(c.Roster), func(id string) bool { return id == studentID })
	s.courses[courseID] = c
	return nil
}

// Ledger is an in-memory append-only event log.
type Ledger struct {
	mu     sync.Mutex
	events []attendance.Event
	// FailWith, when set, makes every append fail. Test-only.
	FailWith error
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) AppendEvent(_ context.Context, evt attendance.Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWith != nil {
		return "", l.FailWith
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	l.events = append(l.events, evt)
	return evt.ID, nil
}

func (l *Ledger) QueryEvents(_ context.Context, q attendance.EventQuery) ([]attendance.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []attendance.Event
	for _, e := range l.events {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns a copy of all recorded events. Test-only helper.
func (l *Ledger) Events() []attendance.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// SummaryCache is a map-backed attendance.SummaryCache.
type SummaryCache struct {
	mu    sync.Mutex
	items map[string]attendance.Summary
	gens  map[string]int64
}

func NewSummaryCache() *SummaryCache {
	return &SummaryCache{
		items: make(map[string]attendance.Summary),
		gens:  make(map[string]int64),
	}
}

func cacheKey(courseID, studentID string) string { return courseID + "/" + studentID }

func (c *SummaryCache) Get(_ context.Context, courseID, studentID string) (*attendance.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[cacheKey(courseID, studentID)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *SummaryCache) Generation(_ context.Context, courseID, studentID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[cacheKey(courseID, studentID)], nil
}

func (c *SummaryCache) SetIfCurrent(_ context.Context, s attendance.Summary, gen int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(s.CourseID, s.StudentID)
	if c.gens[key] != gen {
		return false, nil
	}
	c.items[key] = s
	return true, nil
}

func (c *SummaryCache) Invalidate(_ context.Context, courseID, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(courseID, studentID)
	c.gens[key]++
	delete(c.items, key)
	return nil
}
