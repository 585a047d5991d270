package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qrattend/internal/metrics"
)

// SessionDeps wires a Sessions registry.
type SessionDeps struct {
	Directory Directory
	Policy    Policy
	Guards    GuardFactory
	Recorder  *Recorder
	Notifier  Notifier
	TTL       time.Duration
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// Sessions tracks open scan sessions by id.
type Sessions struct {
	deps SessionDeps
	log  zerolog.Logger

	mu   sync.RWMutex
	open map[string]*ScanSession
}

func NewSessions(d SessionDeps) *Sessions {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Guards == nil {
		d.Guards = MemoryGuards
	}
	if d.TTL <= 0 {
		d.TTL = 3 * time.Hour
	}
	return &Sessions{
		deps: d,
		log:  d.Logger.With().Str("component", "scan_sessions").Logger(),
		open: make(map[string]*ScanSession),
	}
}

// Open starts a session for courseID. Each session gets a fresh guard.
func (r *Sessions) Open(courseID, instructorID string) *ScanSession {
	now := r.deps.Clock()
	id := uuid.NewString()
	s := &ScanSession{
		ID:           id,
		CourseID:     courseID,
		InstructorID: instructorID,
		OpenedAt:     now,
		guard:        r.deps.Guards(id),
		validator:    NewValidator(r.deps.Directory, r.deps.Policy, r.deps.Clock),
		recorder:     r.deps.Recorder,
		notifier:     r.deps.Notifier,
		now:          r.deps.Clock,
		lastActive:   now,
	}

	r.mu.Lock()
	r.open[id] = s
	n := len(r.open)
	r.mu.Unlock()

	metrics.OpenScanSessions.Inc()
	r.log.Info().Str("session_id", id).Str("course_id", courseID).Int("open", n).Msg("scan session opened")
	return s
}

// Get returns the open session with id, or nil.
func (r *Sessions) Get(id string) *ScanSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.open[id]
}

// Close ends the session and releases its guard. It reports false when no
// such session is open.
func (r *Sessions) Close(ctx context.Context, id string) bool {
	r.mu.Lock()
	s, ok := r.open[id]
	delete(r.open, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.close(ctx)
	metrics.OpenScanSessions.Dec()
	r.log.Info().Str("session_id", id).Msg("scan session closed")
	return true
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were closed.
func (r *Sessions) Sweep(ctx context.Context) int {
	cutoff := r.deps.Clock().Add(-r.deps.TTL)

	r.mu.RLock()
	var stale []string
	for id, s := range r.open {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range stale {
		if r.Close(ctx, id) {
			closed++
		}
	}
	return closed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Sessions) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(ctx); n > 0 {
				r.log.Info().Int("closed", n).Msg("expired scan sessions swept")
			}
		}
	}
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.open)
}
