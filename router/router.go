// Package router maps the application's views to address paths and runs
// each protected view's entry check before the view is entered.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/session"
	"github.com/hashicorp/go-hclog"
)

// Views of the application.
const (
	ViewHome           = "home"
	ViewCallback       = "callback"
	ViewProfile        = "profile"
	ViewAxaPortal      = "axa-portal"
	ViewBrokerPortal   = "broker-portal"
	ViewCustomerPortal = "customer-portal"
)

// Route maps a view to its address path.
type Route struct {
	View string
	Path string

	// Protected views require an authenticated session.
	Protected bool

	// Role, when set, is the only role allowed in the view.
	Role session.Role
}

// DefaultRoutes returns the application's route table.  The first route is
// the default for unknown paths.
func DefaultRoutes() []Route {
	return []Route{
		{View: ViewHome, Path: "/"},
		{View: ViewCallback, Path: "/callback"},
		{View: ViewProfile, Path: "/profile", Protected: true},
		{View: ViewAxaPortal, Path: "/axa-portal", Protected: true, Role: session.RoleAxaInternal},
		{View: ViewBrokerPortal, Path: "/broker-portal", Protected: true, Role: session.RoleBroker},
		{View: ViewCustomerPortal, Path: "/customer-portal", Protected: true, Role: session.RoleCustomer},
	}
}

// Authenticator is what the entry checks consult.
type Authenticator interface {
	IsAuthenticated() bool
	GetUserRole() session.Role
	RedirectToPortal(ctx context.Context)
}

// Dispatcher is a browser.Navigator that guards its views.  Views that pass
// their entry check are handed to the render navigator.
type Dispatcher struct {
	auth   Authenticator
	render browser.Navigator

	routes       []Route
	byView       map[string]Route
	byPath       map[string]Route
	portalRoutes map[string]string
	logger       hclog.Logger

	mu      sync.Mutex
	current string
}

// ensure that Dispatcher implements the Navigator interface
var _ browser.Navigator = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
// Supported options: WithLogger, WithRoutes, WithPortalRoutes
func NewDispatcher(a Authenticator, render browser.Navigator, opt ...Option) (*Dispatcher, error) {
	const op = "router.NewDispatcher"
	if a == nil {
		return nil, fmt.Errorf("%s: authenticator is nil: %w", op, ErrNilParameter)
	}
	if render == nil {
		return nil, fmt.Errorf("%s: render navigator is nil: %w", op, ErrNilParameter)
	}
	opts := getDispatcherOpts(opt...)
	d := &Dispatcher{
		auth:         a,
		render:       render,
		routes:       opts.withRoutes,
		byView:       make(map[string]Route, len(opts.withRoutes)),
		byPath:       make(map[string]Route, len(opts.withRoutes)),
		portalRoutes: opts.withPortalRoutes,
		logger:       opts.withLogger,
	}
	for _, r := range opts.withRoutes {
		d.byView[r.View] = r
		d.byPath[r.Path] = r
	}
	return d, nil
}

// Go implements browser.Navigator.  A view whose entry check fails is not
// entered: the user is sent home (not authenticated) or to their own portal
// (wrong role) and ErrTransitionRejected is returned.
func (d *Dispatcher) Go(ctx context.Context, view string) error {
	const op = "router.(Dispatcher).Go"
	r, ok := d.byView[view]
	if !ok {
		return fmt.Errorf("%s: unknown view %q: %w", op, view, ErrNotFound)
	}
	if r.Protected {
		if !d.auth.IsAuthenticated() {
			d.logger.Debug("not authenticated, going home", "op", op, "view", view)
			if err := d.enter(ctx, d.routes[0]); err != nil {
				d.logger.Error("unable to go home", "op", op, "error", err)
			}
			return fmt.Errorf("%s: %s requires authentication: %w", op, view, ErrTransitionRejected)
		}
		if role := d.auth.GetUserRole(); r.Role != "" && role != r.Role {
			d.logger.Debug("role mismatch, redirecting to portal", "op", op, "view", view, "role", role)
			d.auth.RedirectToPortal(ctx)
			return fmt.Errorf("%s: %s is not allowed for role %s: %w", op, view, role, ErrTransitionRejected)
		}
	}
	return d.enter(ctx, r)
}

func (d *Dispatcher) enter(ctx context.Context, r Route) error {
	const op = "router.(Dispatcher).enter"
	if err := d.render.Go(ctx, r.View); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.mu.Lock()
	d.current = r.View
	d.mu.Unlock()
	return nil
}

// Dispatch navigates to the view at path.  Hash-bang prefixes ("#!") are
// accepted and unknown paths resolve to the default route.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) error {
	return d.Go(ctx, d.Resolve(path).View)
}

// Resolve returns the route of path, or the default route.
func (d *Dispatcher) Resolve(path string) Route {
	path = strings.TrimPrefix(path, "#")
	path = strings.TrimPrefix(path, "!")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if r, ok := d.byPath[path]; ok {
		return r
	}
	return d.routes[0]
}

// Current returns the last view entered, or "" before the first.
func (d *Dispatcher) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// PortalLink returns the hash-bang link to the portal of the current role.
func (d *Dispatcher) PortalLink() string {
	role := string(d.auth.GetUserRole())
	view, ok := d.portalRoutes[role]
	if !ok || view == "" {
		view = d.portalRoutes[string(session.DefaultRole)]
	}
	if view == "" {
		view = ViewCustomerPortal
	}
	return "#!/" + view
}

// RoleDisplayName returns a human readable name for role.
func RoleDisplayName(role session.Role) string {
	switch role {
	case session.RoleAxaInternal:
		return "AXA Internal"
	case session.RoleBroker:
		return "Broker"
	case session.RoleCustomer:
		return "Customer"
	default:
		return "User"
	}
}
