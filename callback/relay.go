package callback

import (
	"context"
	"fmt"
	"time"

	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/session"
	"github.com/hashicorp/go-hclog"
)

// Relay moves a provider redirect fragment out of the address bar and into
// the handoff store, then replaces the page with the canonical callback
// address.  It runs once per page load, before anything else.
type Relay struct {
	location   browser.Location
	handoff    *session.HandoffStore
	scheduler  browser.Scheduler
	redirector browser.Redirector

	callbackRoute string
	delay         time.Duration
	logger        hclog.Logger
}

// NewRelay creates a Relay.  Supported options: WithLogger,
// WithCallbackRoute, WithDelay.
func NewRelay(l browser.Location, h *session.HandoffStore, s browser.Scheduler, r browser.Redirector, opt ...Option) (*Relay, error) {
	const op = "callback.NewRelay"
	switch {
	case l == nil:
		return nil, fmt.Errorf("%s: location is nil: %w", op, ErrNilParameter)
	case h == nil:
		return nil, fmt.Errorf("%s: handoff store is nil: %w", op, ErrNilParameter)
	case s == nil:
		return nil, fmt.Errorf("%s: scheduler is nil: %w", op, ErrNilParameter)
	case r == nil:
		return nil, fmt.Errorf("%s: redirector is nil: %w", op, ErrNilParameter)
	}
	opts := getRelayOpts(opt...)
	return &Relay{
		location:      l,
		handoff:       h,
		scheduler:     s,
		redirector:    r,
		callbackRoute: opts.withCallbackRoute,
		delay:         opts.withDelay,
		logger:        opts.withLogger,
	}, nil
}

// CallbackURL is the canonical callback address the relay navigates to.
func (r *Relay) CallbackURL() string {
	return r.location.Origin() + r.callbackRoute
}

// Run relays the current fragment, if any.  It returns true when the
// navigation to the callback address has been scheduled; storage is only
// written in that case.
func (r *Relay) Run(ctx context.Context) bool {
	hash := r.location.Hash()
	if !HasMarker(hash) {
		r.logger.Debug("no provider response in fragment, skipping")
		return false
	}
	segment, ok := Extract(hash)
	if !ok {
		r.logger.Error("unable to extract provider response from fragment")
		return false
	}

	h := session.Handoff{
		Fragment:      "#" + segment,
		ShouldProcess: true,
		Timestamp:     r.scheduler.Now(),
		OriginalURL:   r.location.Href(),
	}
	if err := r.handoff.Write(h); err != nil {
		r.logger.Error("unable to store callback handoff", "error", err)
	}
	if !r.handoff.HasFragment() || !r.handoff.ShouldProcess() {
		r.logger.Error("callback handoff did not read back after write",
			"has_fragment", r.handoff.HasFragment(),
			"should_process", r.handoff.ShouldProcess())
	} else {
		r.logger.Debug("callback handoff stored", "length", len(h.Fragment))
	}

	target := r.CallbackURL()
	r.scheduler.AfterFunc(r.delay, func() {
		r.logger.Debug("replacing location", "url", target)
		if err := r.redirector.Redirect(ctx, target); err != nil {
			r.logger.Error("unable to navigate to callback address", "url", target, "error", err)
		}
	})
	return true
}
