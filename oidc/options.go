package oidc

import "time"

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

// WithExpirySkew provides an optional expiry skew duration for: State,
// Provider.VerifyIdToken
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *stOptions:
			v.withExpirySkew = d
		case *verifyOptions:
			v.withExpirySkew = d
		}
	}
}

// WithNow provides an optional function that returns the current time for:
// NewState, State.IsExpired, Provider.AuthURL, Provider.VerifyIdToken
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *stOptions:
			v.withNowFunc = now
		case *authURLOptions:
			v.withNowFunc = now
		case *verifyOptions:
			v.withNowFunc = now
		}
	}
}

// WithPrompt provides an optional "prompt" parameter for Provider.AuthURL
func WithPrompt(prompt string) Option {
	return func(o interface{}) {
		if v, ok := o.(*authURLOptions); ok {
			v.withPrompt = prompt
		}
	}
}

// WithResponseMode provides an optional "response_mode" parameter for
// Provider.AuthURL
func WithResponseMode(mode string) Option {
	return func(o interface{}) {
		if v, ok := o.(*authURLOptions); ok {
			v.withResponseMode = mode
		}
	}
}

// authURLOptions is the set of available options for Provider.AuthURL
type authURLOptions struct {
	withNowFunc      func() time.Time
	withPrompt       string
	withResponseMode string
}

func authURLDefaults() authURLOptions {
	return authURLOptions{withNowFunc: time.Now}
}

func getAuthURLOpts(opt ...Option) authURLOptions {
	opts := authURLDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// verifyOptions is the set of available options for Provider.VerifyIdToken
type verifyOptions struct {
	withNowFunc    func() time.Time
	withExpirySkew time.Duration
}

// DefaultIdTokenExpirySkew is the leeway allowed when checking an id_token's
// "exp" claim.
const DefaultIdTokenExpirySkew = 30 * time.Second

func verifyDefaults() verifyOptions {
	return verifyOptions{
		withNowFunc:    time.Now,
		withExpirySkew: DefaultIdTokenExpirySkew,
	}
}

func getVerifyOpts(opt ...Option) verifyOptions {
	opts := verifyDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
