package auth

import (
	"fmt"
	"sync"
)

// Phase is the redirect guard's phase.
type Phase int

const (
	// PhaseIdle accepts a new redirect attempt.
	PhaseIdle Phase = iota

	// PhaseRedirecting holds the redirect lock while an attempt is in
	// flight.
	PhaseRedirecting

	// PhaseDone holds the redirect lock after a successful navigation,
	// until the settle delay resets the guard.
	PhaseDone

	// PhaseAborted is entered when the loop breaker fires.  Attempts are
	// reset and, like PhaseIdle, a new attempt is accepted.
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRedirecting:
		return "redirecting"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// GuardState is a snapshot of the redirect guard.
type GuardState struct {
	Phase    Phase
	Attempts int
}

// Redirecting reports whether the redirect lock is held.
func (s GuardState) Redirecting() bool {
	return s.Phase == PhaseRedirecting || s.Phase == PhaseDone
}

type acquireResult int

const (
	acquired acquireResult = iota
	acquireBusy
	acquireExhausted
)

// guard protects portal navigation against redirect loops.  The mutex is
// never held while navigating.
type guard struct {
	mu          sync.Mutex
	phase       Phase
	attempts    int
	maxAttempts int
}

func newGuard(maxAttempts int) *guard {
	return &guard{maxAttempts: maxAttempts}
}

// acquire starts an attempt.  When the ceiling is exceeded the guard is
// reset to (Aborted, 0) and acquireExhausted is returned.
func (g *guard) acquire() (int, acquireResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == PhaseRedirecting || g.phase == PhaseDone {
		return g.attempts, acquireBusy
	}
	g.attempts++
	if g.attempts > g.maxAttempts {
		n := g.attempts
		g.attempts = 0
		g.phase = PhaseAborted
		return n, acquireExhausted
	}
	g.phase = PhaseRedirecting
	return g.attempts, acquired
}

// release drops the lock and keeps the attempt count.
func (g *guard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = PhaseIdle
}

// done marks a successful navigation; the lock stays held until settle.
func (g *guard) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = PhaseDone
}

// settle resets the guard to (Idle, 0).
func (g *guard) settle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = PhaseIdle
	g.attempts = 0
}

// recheckFailed resets attempts after a delayed re-check found no session.
// A lock taken by a newer attempt in the meantime is left held.
func (g *guard) recheckFailed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts = 0
	if g.phase != PhaseRedirecting && g.phase != PhaseDone {
		g.phase = PhaseAborted
	}
}

func (g *guard) state() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GuardState{Phase: g.phase, Attempts: g.attempts}
}
