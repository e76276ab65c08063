package browser

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TestScheduler is a Scheduler driven by a manual clock.  Callbacks only
// run from Advance or RunAll, on the caller's goroutine, in due order.
type TestScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*testTimer
}

// ensure that TestScheduler implements the Scheduler interface
var _ Scheduler = (*TestScheduler)(nil)

// NewTestScheduler creates a TestScheduler whose clock starts at start.
func NewTestScheduler(start time.Time) *TestScheduler {
	return &TestScheduler{now: start}
}

// Now implements Scheduler.Now.
func (s *TestScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc implements Scheduler.AfterFunc.
func (s *TestScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &testTimer{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Pending returns the number of callbacks waiting to run.
func (s *TestScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves the clock forward by d, running every callback that
// becomes due, including callbacks scheduled by other callbacks.
func (s *TestScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()
	for {
		t := s.next(target)
		if t == nil {
			break
		}
		t.f()
	}
	s.mu.Lock()
	if target.After(s.now) {
		s.now = target
	}
	s.mu.Unlock()
}

// RunAll runs callbacks until none are pending, advancing the clock to each
// one's due time.  It gives up after max callbacks to break runaway loops and
// returns the number of callbacks run.
func (s *TestScheduler) RunAll(max int) int {
	var n int
	for ; n < max; n++ {
		t := s.next(time.Time{})
		if t == nil {
			break
		}
		t.f()
	}
	return n
}

// next pops the earliest timer due at or before target (any timer when
// target is zero) and moves the clock to it.
func (s *TestScheduler) next(target time.Time) *testTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].at.Equal(s.timers[j].at) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].at.Before(s.timers[j].at)
	})
	t := s.timers[0]
	if !target.IsZero() && t.at.After(target) {
		return nil
	}
	s.timers = s.timers[1:]
	if t.at.After(s.now) {
		s.now = t.at
	}
	return t
}

type testTimer struct {
	s   *TestScheduler
	at  time.Time
	seq int
	f   func()
}

// Stop implements Timer.Stop
func (t *testTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, pending := range t.s.timers {
		if pending == t {
			t.s.timers = append(t.s.timers[:i], t.s.timers[i+1:]...)
			return true
		}
	}
	return false
}

// TestNavigator is a Navigator and Redirector that records every
// navigation.  Views listed with Reject fail with the given error.
type TestNavigator struct {
	mu        sync.Mutex
	views     []string
	redirects []string
	reject    map[string]error
}

// ensure that TestNavigator implements the Navigator and Redirector
// interfaces
var (
	_ Navigator  = (*TestNavigator)(nil)
	_ Redirector = (*TestNavigator)(nil)
)

// NewTestNavigator creates an empty TestNavigator.
func NewTestNavigator() *TestNavigator {
	return &TestNavigator{reject: map[string]error{}}
}

// Go implements Navigator.Go.
func (n *TestNavigator) Go(_ context.Context, view string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.views = append(n.views, view)
	return n.reject[view]
}

// Redirect implements Redirector.Redirect.
func (n *TestNavigator) Redirect(_ context.Context, rawURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, rawURL)
	return nil
}

// Reject makes navigations to view fail with err.  A nil err accepts the
// view again.
func (n *TestNavigator) Reject(view string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.reject, view)
		return
	}
	n.reject[view] = err
}

// Views returns the views navigated to, in order.
func (n *TestNavigator) Views() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.views...)
}

// Redirects returns the full-page redirect targets, in order.
func (n *TestNavigator) Redirects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.redirects...)
}
