package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"qrattend/internal/metrics"
	"qrattend/internal/qrtoken"
)

// OutcomeKind classifies the result of processing one frame.
type OutcomeKind string

const (
	OutcomeEmpty          OutcomeKind = "empty"
	OutcomeRecorded       OutcomeKind = "recorded"
	OutcomeDuplicate      OutcomeKind = "duplicate"
	OutcomeMalformed      OutcomeKind = "malformed"
	OutcomeCourseMismatch OutcomeKind = "course_mismatch"
	OutcomeUnknownStudent OutcomeKind = "unknown_student"
	OutcomeNotEnrolled    OutcomeKind = "not_enrolled"
	OutcomeExpired        OutcomeKind = "expired"
	OutcomeUnavailable    OutcomeKind = "unavailable"
	OutcomeWriteFailed    OutcomeKind = "write_failed"
)

// Silent outcomes are expected no-ops and produce no notification.
func (k OutcomeKind) Silent() bool {
	return k == OutcomeEmpty || k == OutcomeDuplicate
}

// Outcome is the result of one scan attempt.
type Outcome struct {
	Kind      OutcomeKind
	StudentID string
	Event     *Event
	Err       error
}

// Notification is the user-facing message for a non-silent outcome.
type Notification struct {
	Kind      OutcomeKind
	SessionID string
	CourseID  string
	StudentID string
	EventID   string
	Message   string
	At        time.Time
}

// Notifier delivers notifications (toasts, logs). Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, note Notification) {
	ev := n.Log.Info()
	if note.Kind != OutcomeRecorded {
		ev = n.Log.Warn()
	}
	ev.Str("outcome", string(note.Kind)).
		Str("session_id", note.SessionID).
		Str("course_id", note.CourseID).
		Str("student_id", note.StudentID).
		Str("event_id", note.EventID).
		Msg(note.Message)
}

// ScanSession is one continuous scanning activity for a course. Frames are
// processed one at a time.
type ScanSession struct {
	ID           string
	CourseID     string
	InstructorID string
	OpenedAt     time.Time

	guard     Guard
	validator *Validator
	recorder  *Recorder
	notifier  Notifier
	now       func() time.Time

	mu         sync.Mutex
	closed     bool
	lastActive time.Time
}

// Process runs decode, validate, dedup and record for one decoded frame.
func (s *ScanSession) Process(ctx context.Context, raw string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Outcome{Kind: OutcomeUnavailable, Err: ErrSessionClosed}
	}
	s.lastActive = s.now()

	out := s.process(ctx, raw)
	metrics.ScanOutcomes.WithLabelValues(string(out.Kind)).Inc()
	if !out.Kind.Silent() && s.notifier != nil {
		n := Notification{
			Kind:      out.Kind,
			SessionID: s.ID,
			CourseID:  s.CourseID,
			StudentID: out.StudentID,
			Message:   out.Message(),
			At:        s.lastActive,
		}
		if out.Event != nil {
			n.EventID = out.Event.ID
		}
		s.notifier.Notify(ctx, n)
	}
	return out
}

func (s *ScanSession) process(ctx context.Context, raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Kind: OutcomeEmpty}
	}

	payload, err := qrtoken.Decode(raw)
	if err != nil {
		return Outcome{Kind: OutcomeMalformed, Err: err}
	}

	scan, err := s.validator.Validate(ctx, payload, s.CourseID)
	if err != nil {
		return Outcome{Kind: classify(err), StudentID: payload.StudentID, Err: err}
	}

	admitted, err := s.guard.Admit(ctx, scan.StudentID)
	if err != nil {
		return Outcome{Kind: OutcomeUnavailable, StudentID: scan.StudentID, Err: fmt.Errorf("dedup guard: %w", err)}
	}
	if !admitted {
		return Outcome{Kind: OutcomeDuplicate, StudentID: scan.StudentID}
	}

	// The admission stays in place if the append fails; a rescan in this
	// session is dropped as a duplicate.
	evt, err := s.recorder.Record(ctx, scan)
	if err != nil {
		return Outcome{Kind: OutcomeWriteFailed, StudentID: scan.StudentID, Err: err}
	}
	return Outcome{Kind: OutcomeRecorded, StudentID: scan.StudentID, Event: &evt}
}

func classify(err error) OutcomeKind {
	switch {
	case errors.Is(err, ErrCourseMismatch):
		return OutcomeCourseMismatch
	case errors.Is(err, ErrUnknownStudent):
		return OutcomeUnknownStudent
	case errors.Is(err, ErrNotEnrolled):
		return OutcomeNotEnrolled
	case errors.Is(err, ErrTokenExpired):
		return OutcomeExpired
	default:
		return OutcomeUnavailable
	}
}

// Message is the user-facing text for the outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeRecorded:
		return fmt.Sprintf("Attendance marked for %s", o.StudentID)
	case OutcomeMalformed:
		return "Unreadable QR code"
	case OutcomeCourseMismatch:
		return "QR code belongs to a different course"
	case OutcomeUnknownStudent:
		return fmt.Sprintf("Student %s is not in the directory", o.StudentID)
	case OutcomeNotEnrolled:
		return fmt.Sprintf("Student %s is not enrolled in this course", o.StudentID)
	case OutcomeExpired:
		return "QR code has expired"
	case OutcomeWriteFailed:
		return fmt.Sprintf("Could not save attendance for %s, please rescan after reopening the scanner", o.StudentID)
	case OutcomeEmpty, OutcomeDuplicate:
		return ""
	default:
		return "Scanner temporarily unavailable"
	}
}

// Frame is one decoded camera frame. Empty Text means no code was found.
type Frame struct {
	Text string
}

// FrameSource yields frames on demand. Next returns io.EOF when the source
// is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// SliceSource replays a fixed list of frames.
type SliceSource struct {
	frames []string
	pos    int
}

func NewSliceSource(frames ...string) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := Frame{Text: s.frames[s.pos]}
	s.pos++
	return f, nil
}

// RunOptions controls Run.
type RunOptions struct {
	// StopAfterRecord ends the run after the first recorded event, the way
	// the camera loop pauses after a successful scan.
	StopAfterRecord bool
	// OnOutcome, when set, observes every outcome in order.
	OnOutcome func(Outcome)
}

// RunStats counts outcomes of a Run.
type RunStats struct {
	Frames int
	ByKind map[OutcomeKind]int
}

// Run pulls frames from src until it is exhausted, ctx is done, or
// StopAfterRecord triggers. Scan errors never end the run.
func (s *ScanSession) Run(ctx context.Context, src FrameSource, opts RunOptions) (RunStats, error) {
	stats := RunStats{ByKind: make(map[OutcomeKind]int)}
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		out := s.Process(ctx, frame.Text)
		stats.Frames++
		stats.ByKind[out.Kind]++
		if opts.OnOutcome != nil {
			opts.OnOutcome(out)
		}
		if errors.Is(out.Err, ErrSessionClosed) {
			return stats, ErrSessionClosed
		}
		if opts.StopAfterRecord && out.Kind == OutcomeRecorded {
			return stats, nil
		}
	}
}

func (s *ScanSession) close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if r, ok := s.guard.(Releaser); ok {
		_ = r.Release(ctx)
	}
}

func (s *ScanSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
