package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/axa-poc/portalauth/app"
	"github.com/axa-poc/portalauth/auth"
	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/router"
	"github.com/hashicorp/go-hclog"
	sysbrowser "github.com/pkg/browser"
	"go.etcd.io/bbolt"
)

// Host runs portal page loads in a terminal.  Both storage scopes live in
// one BBolt file, timers run on a browser.Loop, views are printed, and
// full-page redirects either load the next portal page in process (same
// origin) or open the system browser.
type Host struct {
	db      *bbolt.DB
	durable *browser.BoltStorage
	tab     *browser.BoltStorage
	loop    *browser.Loop

	origin string
	out    io.Writer
	open   func(url string) error
	logger hclog.Logger

	mu   sync.Mutex
	next []string
}

// ensure that Host implements the Redirector and Navigator interfaces
var (
	_ browser.Redirector = (*Host)(nil)
	_ browser.Navigator  = (*Host)(nil)
)

// NewHost opens the storage file at dbPath.  origin is the portal's
// scheme://host[:port]; redirects under it are loaded in process and the
// rest are passed to open, which defaults to the system browser.
func NewHost(dbPath, origin string, out io.Writer, open func(string) error, logger hclog.Logger) (*Host, error) {
	const op = "cli.NewHost"
	db, err := browser.OpenBolt(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	durable, err := browser.NewBoltStorage(db, browser.DurableBucket)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tab, err := browser.NewBoltStorage(db, browser.TabBucket)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if open == nil {
		open = sysbrowser.OpenURL
	}
	return &Host{
		db:      db,
		durable: durable,
		tab:     tab,
		loop:    browser.NewLoop(),
		origin:  strings.TrimSuffix(origin, "/"),
		out:     out,
		open:    open,
		logger:  logger,
	}, nil
}

// Close releases the storage file.
func (h *Host) Close() error {
	return h.db.Close()
}

// Redirect implements browser.Redirector.
func (h *Host) Redirect(_ context.Context, rawURL string) error {
	if h.origin != "" && (rawURL == h.origin || strings.HasPrefix(rawURL, h.origin+"/")) {
		h.mu.Lock()
		h.next = append(h.next, rawURL)
		h.mu.Unlock()
		return nil
	}
	fmt.Fprintf(h.out, "open %s\n", rawURL)
	if err := h.open(rawURL); err != nil {
		h.logger.Warn("unable to open system browser, open the address above manually", "error", err)
	}
	return nil
}

// Go implements browser.Navigator by printing the view.
func (h *Host) Go(_ context.Context, view string) error {
	fmt.Fprintf(h.out, "view %s\n", view)
	return nil
}

func (h *Host) appHost() app.Host {
	return app.Host{
		Durable:    h.durable,
		Tab:        h.tab,
		Scheduler:  h.loop,
		Redirector: h,
		Render:     h,
	}
}

func (h *Host) popNext() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.next) == 0 {
		return "", false
	}
	u := h.next[0]
	h.next = h.next[1:]
	return u, true
}

// Visit loads href and every same-origin page it redirects to, letting each
// page's timers finish.  A page left on the callback view waits for the
// session the way the callback view does.  The last page loaded is returned.
func (h *Host) Visit(ctx context.Context, p auth.Provider, href string, opt ...app.Option) (*app.Page, error) {
	const op = "cli.(Host).Visit"
	var last *app.Page
	for {
		var (
			page *app.Page
			err  error
		)
		h.loop.Do(func() { page, err = app.Load(ctx, p, href, h.appHost(), opt...) })
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		last = page
		if err := h.loop.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !page.Relayed && page.Router.Current() == router.ViewCallback {
			if err := page.Manager.AwaitAuthentication(ctx); err != nil {
				fmt.Fprintln(h.out, err.Error())
			}
			if err := h.loop.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		next, ok := h.popNext()
		if !ok {
			return last, nil
		}
		href = next
	}
}

// Follow loads the same-origin redirects queued since the last Visit.  It
// returns nil when none are queued.
func (h *Host) Follow(ctx context.Context, p auth.Provider, opt ...app.Option) (*app.Page, error) {
	next, ok := h.popNext()
	if !ok {
		return nil, nil
	}
	return h.Visit(ctx, p, next, opt...)
}

// Do runs f on the host's loop.
func (h *Host) Do(f func()) { h.loop.Do(f) }

// Wait blocks until no timers are pending.
func (h *Host) Wait(ctx context.Context) error { return h.loop.Wait(ctx) }

// Keys returns the keys of both storage scopes, durable first.
func (h *Host) Keys() (durable, tab []string, err error) {
	const op = "cli.(Host).Keys"
	if durable, err = h.durable.Keys(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if tab, err = h.tab.Keys(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return durable, tab, nil
}

// Reset empties both storage scopes.
func (h *Host) Reset() error {
	const op = "cli.(Host).Reset"
	if err := h.durable.Clear(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := h.tab.Clear(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
