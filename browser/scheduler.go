package browser

import (
	"context"
	"sync"
	"time"
)

// Loop is a Scheduler with event-loop semantics: callbacks scheduled with
// AfterFunc, and host code run with Do, execute one at a time.  Wait lets a
// host block until every pending callback has run, which is how a
// short-lived process lets the deferred steps of a flow finish.
type Loop struct {
	// run serializes callbacks and Do.
	run sync.Mutex

	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// ensure that Loop implements the Scheduler interface
var _ Scheduler = (*Loop)(nil)

// NewLoop creates an idle Loop.
func NewLoop() *Loop {
	idle := make(chan struct{})
	close(idle)
	return &Loop{idle: idle}
}

// Now implements Scheduler.Now.
func (l *Loop) Now() time.Time { return time.Now() }

// AfterFunc implements Scheduler.AfterFunc.  f must not call Do.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	l.add()
	t := &loopTimer{l: l}
	t.t = time.AfterFunc(d, func() {
		defer l.done()
		l.run.Lock()
		defer l.run.Unlock()
		f()
	})
	return t
}

// Do runs f on the loop, after any callback currently running.
func (l *Loop) Do(f func()) {
	l.run.Lock()
	defer l.run.Unlock()
	f()
}

// Pending returns the number of callbacks that have not run yet.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Wait blocks until no callbacks are pending or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) add() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == 0 {
		l.idle = make(chan struct{})
	}
	l.pending++
}

func (l *Loop) done() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending--
	if l.pending == 0 {
		close(l.idle)
	}
}

type loopTimer struct {
	l *Loop
	t *time.Timer
}

// Stop implements Timer.Stop
func (t *loopTimer) Stop() bool {
	if t.t.Stop() {
		t.l.done()
		return true
	}
	return false
}
