package auth

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Delays sequences the timer driven steps of authentication.  Shortening
// them never changes the order of the steps.
type Delays struct {
	// ProfileSuccess and ProfileFailure are waited after the profile fetch
	// completes, before navigating to the portal.
	ProfileSuccess time.Duration
	ProfileFailure time.Duration

	// AuthRetry is waited before re-checking a session that did not read
	// back as authenticated.
	AuthRetry time.Duration

	// PreNavigate is waited before the portal navigation.
	PreNavigate time.Duration

	// Settle is waited after a successful navigation before the redirect
	// guard is reset.
	Settle time.Duration

	// AuthPoll and AuthTimeout drive WatchAuthentication.
	AuthPoll    time.Duration
	AuthTimeout time.Duration
}

// DefaultDelays returns the delays used when none are configured.
func DefaultDelays() Delays {
	return Delays{
		ProfileSuccess: 300 * time.Millisecond,
		ProfileFailure: 500 * time.Millisecond,
		AuthRetry:      500 * time.Millisecond,
		PreNavigate:    100 * time.Millisecond,
		Settle:         1000 * time.Millisecond,
		AuthPoll:       100 * time.Millisecond,
		AuthTimeout:    10 * time.Second,
	}
}

// DefaultTransactionTTL is how long a login transaction stays valid.
const DefaultTransactionTTL = 10 * time.Minute

// DefaultMaxRedirectAttempts is the redirect guard's attempt ceiling.
const DefaultMaxRedirectAttempts = 3

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// managerOptions is the set of available options for NewManager
type managerOptions struct {
	withLogger         hclog.Logger
	withDelays         Delays
	withTransactionTTL time.Duration
	withMaxAttempts    int
}

func managerDefaults() managerOptions {
	return managerOptions{
		withLogger:         hclog.NewNullLogger(),
		withDelays:         DefaultDelays(),
		withTransactionTTL: DefaultTransactionTTL,
		withMaxAttempts:    DefaultMaxRedirectAttempts,
	}
}

func getManagerOpts(opt ...Option) managerOptions {
	opts := managerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the Manager.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*managerOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithDelays overrides the default Delays.  Zero fields keep their
// default.
func WithDelays(d Delays) Option {
	return func(o interface{}) {
		v, ok := o.(*managerOptions)
		if !ok {
			return
		}
		def := &v.withDelays
		for _, f := range []struct {
			dst *time.Duration
			src time.Duration
		}{
			{&def.ProfileSuccess, d.ProfileSuccess},
			{&def.ProfileFailure, d.ProfileFailure},
			{&def.AuthRetry, d.AuthRetry},
			{&def.PreNavigate, d.PreNavigate},
			{&def.Settle, d.Settle},
			{&def.AuthPoll, d.AuthPoll},
			{&def.AuthTimeout, d.AuthTimeout},
		} {
			if f.src > 0 {
				*f.dst = f.src
			}
		}
	}
}

// WithTransactionTTL sets how long a login transaction stays valid.
func WithTransactionTTL(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*managerOptions); ok && d > 0 {
			v.withTransactionTTL = d
		}
	}
}

// WithMaxRedirectAttempts sets the redirect guard's attempt ceiling.
func WithMaxRedirectAttempts(n int) Option {
	return func(o interface{}) {
		if v, ok := o.(*managerOptions); ok && n > 0 {
			v.withMaxAttempts = n
		}
	}
}
