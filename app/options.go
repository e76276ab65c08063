package app

import (
	"net/http"
	"time"

	"github.com/axa-poc/portalauth/auth"
	"github.com/axa-poc/portalauth/callback"
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

type loadOptions struct {
	withLogger      hclog.Logger
	withRelayDelay  time.Duration
	withAuthOptions []auth.Option
	withBase        http.RoundTripper
}

func loadDefaults() loadOptions {
	return loadOptions{
		withLogger:     hclog.NewNullLogger(),
		withRelayDelay: callback.DefaultRelayDelay,
	}
}

func getLoadOpts(opt ...Option) loadOptions {
	opts := loadDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.  Each component gets a named
// sub-logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*loadOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithRelayDelay overrides the callback relay's navigation delay.
func WithRelayDelay(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*loadOptions); ok && d >= 0 {
			v.withRelayDelay = d
		}
	}
}

// WithAuthOptions passes options through to auth.NewManager.  The manager's
// logger is always the named "auth" sub-logger unless one is given here.
func WithAuthOptions(opt ...auth.Option) Option {
	return func(o interface{}) {
		if v, ok := o.(*loadOptions); ok {
			v.withAuthOptions = append(v.withAuthOptions, opt...)
		}
	}
}

// WithBaseTransport sets the round tripper under the page's bearer client.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o interface{}) {
		if v, ok := o.(*loadOptions); ok && rt != nil {
			v.withBase = rt
		}
	}
}
