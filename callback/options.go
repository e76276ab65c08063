package callback

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultCallbackRoute is appended to the location origin to form the
// canonical callback address.
const DefaultCallbackRoute = "/#!/callback"

// DefaultRelayDelay gives the handoff write time to commit before the page
// is replaced.
const DefaultRelayDelay = 100 * time.Millisecond

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

type relayOptions struct {
	withLogger        hclog.Logger
	withCallbackRoute string
	withDelay         time.Duration
}

func relayDefaults() relayOptions {
	return relayOptions{
		withLogger:        hclog.NewNullLogger(),
		withCallbackRoute: DefaultCallbackRoute,
		withDelay:         DefaultRelayDelay,
	}
}

func getRelayOpts(opt ...Option) relayOptions {
	opts := relayDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the Relay.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*relayOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithCallbackRoute overrides DefaultCallbackRoute.
func WithCallbackRoute(route string) Option {
	return func(o interface{}) {
		if v, ok := o.(*relayOptions); ok && route != "" {
			v.withCallbackRoute = route
		}
	}
}

// WithDelay overrides DefaultRelayDelay.
func WithDelay(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*relayOptions); ok && d >= 0 {
			v.withDelay = d
		}
	}
}
