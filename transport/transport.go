// Package transport attaches the session's access token to outgoing
// requests.
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
)

var ErrNilParameter = errors.New("nil parameter")

// TokenSource returns the current access token, or "" when there is none.
type TokenSource interface {
	GetAccessToken() string
}

// Bearer is an http.RoundTripper that sets "Authorization: Bearer <token>"
// on every request except those to the identity provider.
type Bearer struct {
	base           http.RoundTripper
	tokens         TokenSource
	providerDomain string
	logger         hclog.Logger
}

// ensure that Bearer implements the http.RoundTripper interface
var _ http.RoundTripper = (*Bearer)(nil)

// NewBearer creates a Bearer.  providerDomain is a host name
// ("tenant.us.auth0.com") or an issuer URL.
// Supported options: WithBase, WithLogger
func NewBearer(tokens TokenSource, providerDomain string, opt ...Option) (*Bearer, error) {
	const op = "transport.NewBearer"
	if tokens == nil {
		return nil, fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	opts := getBearerOpts(opt...)
	return &Bearer{
		base:           opts.withBase,
		tokens:         tokens,
		providerDomain: providerDomain,
		logger:         opts.withLogger,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (b *Bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	out := Augment(req, b.tokens.GetAccessToken(), b.providerDomain)
	if out != req {
		b.logger.Trace("attached bearer token", "host", req.URL.Host)
	}
	return b.base.RoundTrip(out)
}

// Client returns an http.Client using b.
func (b *Bearer) Client() *http.Client {
	return &http.Client{Transport: b}
}

// Augment returns req with the bearer token set, on a clone, unless token
// is empty or req is addressed to providerDomain or one of its subdomains,
// in which case req itself is returned.
func Augment(req *http.Request, token, providerDomain string) *http.Request {
	if token == "" || req == nil || req.URL == nil {
		return req
	}
	if isProviderHost(req.URL.Hostname(), providerDomain) {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}

func isProviderHost(host, providerDomain string) bool {
	domain := providerDomain
	if strings.Contains(domain, "://") {
		u, err := url.Parse(domain)
		if err != nil {
			return false
		}
		domain = u.Hostname()
	} else if i := strings.IndexAny(domain, ":/"); i >= 0 {
		domain = domain[:i]
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if domain == "" || host == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

type bearerOptions struct {
	withBase   http.RoundTripper
	withLogger hclog.Logger
}

func getBearerOpts(opt ...Option) bearerOptions {
	opts := bearerOptions{
		withBase:   cleanhttp.DefaultPooledTransport(),
		withLogger: hclog.NewNullLogger(),
	}
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// WithBase provides the transport requests are sent with.  The default is
// a go-cleanhttp pooled transport.
func WithBase(rt http.RoundTripper) Option {
	return func(o interface{}) {
		if v, ok := o.(*bearerOptions); ok && rt != nil {
			v.withBase = rt
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*bearerOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}
