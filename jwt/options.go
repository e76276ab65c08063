package jwt

import "github.com/hashicorp/go-hclog"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type decodeOptions struct {
	withLogger hclog.Logger
}

func decodeDefaults() decodeOptions {
	return decodeOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getDecodeOpts gets the defaults and applies the opt overrides passed
// in.
func getDecodeOpts(opt ...Option) decodeOptions {
	opts := decodeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

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

// WithLogger provides an optional logger that receives decoding failures.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *decodeOptions:
			if l != nil {
				v.withLogger = l
			}
		}
	}
}
