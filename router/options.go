package router

import (
	"github.com/axa-poc/portalauth/oidc"
	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

type dispatcherOptions struct {
	withLogger       hclog.Logger
	withRoutes       []Route
	withPortalRoutes map[string]string
}

func dispatcherDefaults() dispatcherOptions {
	return dispatcherOptions{
		withLogger:       hclog.NewNullLogger(),
		withRoutes:       DefaultRoutes(),
		withPortalRoutes: oidc.DefaultPortalRoutes(),
	}
}

func getDispatcherOpts(opt ...Option) dispatcherOptions {
	opts := dispatcherDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the Dispatcher.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*dispatcherOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithRoutes replaces the route table.
func WithRoutes(routes []Route) Option {
	return func(o interface{}) {
		if v, ok := o.(*dispatcherOptions); ok && len(routes) > 0 {
			v.withRoutes = routes
		}
	}
}

// WithPortalRoutes provides the role to portal view mapping used by
// PortalLink.  See oidc.Config.PortalRoutes.
func WithPortalRoutes(routes map[string]string) Option {
	return func(o interface{}) {
		if v, ok := o.(*dispatcherOptions); ok && len(routes) > 0 {
			v.withPortalRoutes = routes
		}
	}
}
