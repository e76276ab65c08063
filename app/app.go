// Package app runs one page load of the portal: the callback relay first,
// then the session manager's startup check, then the initial route.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/axa-poc/portalauth/auth"
	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/callback"
	"github.com/axa-poc/portalauth/router"
	"github.com/axa-poc/portalauth/session"
	"github.com/axa-poc/portalauth/transport"
)

// Host is what a page load runs against.  Durable outlives the tab; Tab is
// cleared with it.  Render shows a view that passed its entry check.
type Host struct {
	Durable    browser.Storage
	Tab        browser.Storage
	Scheduler  browser.Scheduler
	Redirector browser.Redirector
	Render     browser.Navigator
}

// Page is a loaded page.
type Page struct {
	Location browser.Location

	// Relayed is true when the relay scheduled the replacement of this page
	// with the callback address.  Nothing else ran.
	Relayed bool

	// Outcome and StartupErr report the startup check.
	Outcome    auth.Outcome
	StartupErr error

	Manager *auth.Manager
	Router  *router.Dispatcher
	Relay   *callback.Relay

	bearer *transport.Bearer
}

// Load runs a page load for href.
// Supported options: WithLogger, WithRelayDelay, WithAuthOptions,
// WithBaseTransport
func Load(ctx context.Context, p auth.Provider, href string, h Host, opt ...Option) (*Page, error) {
	const op = "app.Load"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case p.Config() == nil:
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	case h.Render == nil:
		return nil, fmt.Errorf("%s: render navigator is nil: %w", op, ErrNilParameter)
	}
	opts := getLoadOpts(opt...)
	logger := opts.withLogger
	cfg := p.Config()

	loc, err := browser.NewLocation(href)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, err)
	}
	handoff, err := session.NewHandoffStore(h.Tab)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	relay, err := callback.NewRelay(loc, handoff, h.Scheduler, h.Redirector,
		callback.WithLogger(logger.Named("relay")),
		callback.WithCallbackRoute(cfg.CallbackRoute),
		callback.WithDelay(opts.withRelayDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	page := &Page{Location: loc, Relay: relay}
	if relay.Run(ctx) {
		logger.Debug("page is being replaced by the callback address", "op", op, "url", relay.CallbackURL())
		page.Relayed = true
		return page, nil
	}

	var d *router.Dispatcher
	nav := browser.NavigatorFunc(func(ctx context.Context, view string) error {
		return d.Go(ctx, view)
	})
	authOpts := append([]auth.Option{auth.WithLogger(logger.Named("auth"))}, opts.withAuthOptions...)
	m, err := auth.NewManager(p, auth.Host{
		Durable:    h.Durable,
		Tab:        h.Tab,
		Location:   loc,
		Scheduler:  h.Scheduler,
		Redirector: h.Redirector,
		Navigator:  nav,
	}, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d, err = router.NewDispatcher(m, h.Render,
		router.WithLogger(logger.Named("router")),
		router.WithPortalRoutes(cfg.PortalRoutes),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	bearerOpts := []transport.Option{transport.WithLogger(logger.Named("transport"))}
	if opts.withBase != nil {
		bearerOpts = append(bearerOpts, transport.WithBase(opts.withBase))
	}
	bearer, err := transport.NewBearer(m, cfg.Domain, bearerOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	page.Manager, page.Router, page.bearer = m, d, bearer

	page.Outcome, page.StartupErr = m.Startup(ctx)
	if page.StartupErr != nil {
		logger.Error("startup authentication check failed", "op", op, "outcome", page.Outcome, "error", page.StartupErr)
	}

	if err := d.Dispatch(ctx, browser.Route(loc)); err != nil {
		switch {
		case errors.Is(err, router.ErrTransitionRejected):
			logger.Debug("initial route rejected", "op", op, "route", browser.Route(loc))
		default:
			logger.Error("unable to enter initial route", "op", op, "route", browser.Route(loc), "error", err)
		}
	}
	return page, nil
}

// Client returns an http.Client that sends the session's access token to
// every host except the identity provider.  It is nil for a relayed page.
func (p *Page) Client() *http.Client {
	if p.bearer == nil {
		return nil
	}
	return p.bearer.Client()
}
