package attendance

import (
	"context"
	"sync"
)

// Guard suppresses repeated scans of the same student within one scan
// session. Admit must be an atomic check-and-set: it returns true exactly
// once per student for the lifetime of the guard.
type Guard interface {
	Admit(ctx context.Context, studentID string) (bool, error)
}

// Releaser is implemented by guards holding external state that should be
// dropped when their session closes.
type Releaser interface {
	Release(ctx context.Context) error
}

// GuardFactory builds the guard for a newly opened session.
type GuardFactory func(sessionID string) Guard

// MemoryGuard is a process-local guard.
type MemoryGuard struct {
	mu       sync.Mutex
	admitted map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{admitted: make(map[string]struct{})}
}

// MemoryGuards is a GuardFactory producing MemoryGuards.
func MemoryGuards(string) Guard { return NewMemoryGuard() }

func (g *MemoryGuard) Admit(_ context.Context, studentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.admitted[studentID]; ok {
		return false, nil
	}
	g.admitted[studentID] = struct{}{}
	return true, nil
}

// Len returns the number of admitted students.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.admitted)
}
