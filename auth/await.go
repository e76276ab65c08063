package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/axa-poc/portalauth/browser"
)

// WatchAuthentication polls IsAuthenticated every Delays.AuthPoll and calls
// report once: with nil when authentication completes, or with
// ErrAuthenticationTimeout after Delays.AuthTimeout.  Both timers are
// cancelled as soon as either fires.  The returned func stops the watch
// without reporting.
func (m *Manager) WatchAuthentication(report func(error)) (stop func()) {
	var (
		mu       sync.Mutex
		finished bool
		poll     browser.Timer
		timeout  browser.Timer
	)
	finish := func() bool {
		mu.Lock()
		if finished {
			mu.Unlock()
			return false
		}
		finished = true
		p, t := poll, timeout
		mu.Unlock()
		if p != nil {
			p.Stop()
		}
		if t != nil {
			t.Stop()
		}
		return true
	}

	var check func()
	check = func() {
		if m.IsAuthenticated() {
			if finish() {
				m.logger.Debug("authentication completed")
				report(nil)
			}
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			poll = m.scheduler.AfterFunc(m.delays.AuthPoll, check)
		}
	}

	mu.Lock()
	poll = m.scheduler.AfterFunc(m.delays.AuthPoll, check)
	timeout = m.scheduler.AfterFunc(m.delays.AuthTimeout, func() {
		if finish() {
			m.logger.Error("timed out waiting for authentication", "timeout", m.delays.AuthTimeout)
			report(ErrAuthenticationTimeout)
		}
	})
	mu.Unlock()

	return func() { finish() }
}

// AwaitAuthentication blocks until authentication completes, the
// authentication timeout fires or ctx is done.  On timeout it returns
// ErrAuthenticationTimeout itself, whose message is meant for the user.
//
// The Manager's scheduler must run callbacks on its own (e.g.
// browser.Loop), and AwaitAuthentication must not be called from one of
// them.
func (m *Manager) AwaitAuthentication(ctx context.Context) error {
	const op = "auth.(Manager).AwaitAuthentication"
	ch := make(chan error, 1)
	stop := m.WatchAuthentication(func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		stop()
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
