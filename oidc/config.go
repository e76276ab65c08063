package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/axa-poc/portalauth/internal/strutils"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
)

// Defaults applied by NewConfig.
const (
	DefaultResponseType  = "token id_token"
	DefaultNamespace     = "https://axa-poc.com"
	DefaultCallbackRoute = "/#!/callback"
)

// DefaultScopes are requested when no scopes are configured.
func DefaultScopes() []string {
	return []string{oidc.ScopeOpenID, "profile", "email"}
}

// DefaultPortalRoutes maps each role to its portal view.
func DefaultPortalRoutes() map[string]string {
	return map[string]string{
		"axa-internal": "axa-portal",
		"broker":       "broker-portal",
		"customer":     "customer-portal",
	}
}

// Config represents the configuration of the portal's implicit flow
// against a single provider.  It is built once at start and passed to every
// component that needs it.
type Config struct {
	// Domain is the provider's domain, e.g. "tenant.us.auth0.com".  A domain
	// with a scheme ("https://127.0.0.1:8443") is used as is.
	Domain string

	// ClientId is the relying party id
	ClientId string

	// RedirectUrl is where the provider sends the authorization response.
	RedirectUrl string

	// LogoutReturnTo is where the provider sends the user after logout.
	LogoutReturnTo string

	// Audience is an optional API identifier to request an access token for.
	Audience string

	// Scopes is the list of scopes to request of the provider.  "openid" is
	// always requested.
	Scopes []string

	// ResponseType is the implicit flow response type.
	ResponseType string

	// Namespace prefixes custom claims; the role claim is Namespace + "/role".
	Namespace string

	// PortalRoutes maps a role to the view of its portal.
	PortalRoutes map[string]string

	// CallbackRoute is appended to the portal origin to form the canonical
	// callback address.
	CallbackRoute string

	// VerifyIdTokens enables id_token signature and claim verification.
	VerifyIdTokens bool

	// SupportedSigningAlgs is a list of supported signing algorithms. List of
	// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
	// PS256, PS384, PS512
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA cert to use when sending requests to the provider.
	ProviderCA string

	// PublicKeys are optional PEM encoded keys used to verify id_tokens
	// instead of the provider's published key set.
	PublicKeys []string
}

// NewConfig composes a new config for a provider.
// Supported options:
//
//	WithLogoutReturnTo
//	WithAudience
//	WithScopes
//	WithResponseType
//	WithNamespace
//	WithPortalRoutes
//	WithCallbackRoute
//	WithVerifyIdTokens
//	WithSupportedSigningAlgs
//	WithProviderCA
//	WithPublicKeys
func NewConfig(domain string, clientId string, redirectUrl string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Domain:               domain,
		ClientId:             clientId,
		RedirectUrl:          redirectUrl,
		LogoutReturnTo:       opts.withLogoutReturnTo,
		Audience:             opts.withAudience,
		Scopes:               opts.withScopes,
		ResponseType:         opts.withResponseType,
		Namespace:            opts.withNamespace,
		PortalRoutes:         opts.withPortalRoutes,
		CallbackRoute:        opts.withCallbackRoute,
		VerifyIdTokens:       opts.withVerifyIdTokens,
		SupportedSigningAlgs: opts.withSupportedSigningAlgs,
		ProviderCA:           opts.withProviderCA,
		PublicKeys:           opts.withPublicKeys,
	}
	if c.LogoutReturnTo == "" {
		if u, err := url.Parse(redirectUrl); err == nil && u.Scheme != "" && u.Host != "" {
			c.LogoutReturnTo = u.Scheme + "://" + u.Host
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  Every problem found is reported.  It
// doesn't verify the Domain is discoverable via an http request.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientId == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if c.Domain == "" {
		result = multierror.Append(result, fmt.Errorf("%s: domain is empty: %w", op, ErrInvalidParameter))
	} else {
		u, err := url.Parse(c.Issuer())
		switch {
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("%s: issuer %s is invalid: %v: %w", op, c.Issuer(), err, ErrInvalidIssuer))
		case !strutils.StrListContains([]string{"https", "http"}, u.Scheme) || u.Host == "":
			result = multierror.Append(result, fmt.Errorf("%s: issuer %s schema is not http or https: %w", op, c.Issuer(), ErrInvalidIssuer))
		}
	}
	if err := validateAbsoluteURL(c.RedirectUrl); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: redirect URL: %w", op, err))
	}
	if c.LogoutReturnTo != "" {
		if err := validateAbsoluteURL(c.LogoutReturnTo); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: logout return to URL: %w", op, err))
		}
	}
	rt := strings.Fields(c.ResponseType)
	if !strutils.StrListContains(rt, "token") || !strutils.StrListContains(rt, "id_token") {
		result = multierror.Append(result, fmt.Errorf("%s: response type %q must request token and id_token: %w", op, c.ResponseType, ErrInvalidParameter))
	}
	if len(c.PortalRoutes) == 0 {
		result = multierror.Append(result, fmt.Errorf("%s: portal routes are empty: %w", op, ErrInvalidParameter))
	}
	for role, view := range c.PortalRoutes {
		if view == "" {
			result = multierror.Append(result, fmt.Errorf("%s: portal view for role %s is empty: %w", op, role, ErrInvalidParameter))
		}
	}
	if c.VerifyIdTokens && len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("%s: unsupported algorithm %s: %w", op, a, ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is empty: %w", ErrInvalidParameter)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q is invalid: %v: %w", raw, err, ErrInvalidParameter)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not absolute: %w", raw, ErrInvalidParameter)
	}
	return nil
}

// Issuer returns the provider's issuer, which always ends in "/".
func (c *Config) Issuer() string {
	iss := c.Domain
	if !strings.Contains(iss, "://") {
		iss = "https://" + iss
	}
	if !strings.HasSuffix(iss, "/") {
		iss += "/"
	}
	return iss
}

// Hostname returns the provider's host name without a port.
func (c *Config) Hostname() string {
	u, err := url.Parse(c.Issuer())
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RoleClaim returns the claim carrying the user's role.
func (c *Config) RoleClaim() string {
	return strings.TrimSuffix(c.Namespace, "/") + "/role"
}

// PortalView returns the portal view for role, falling back to the
// customer portal for unknown roles.
func (c *Config) PortalView(role string) string {
	if v, ok := c.PortalRoutes[role]; ok && v != "" {
		return v
	}
	if v, ok := c.PortalRoutes["customer"]; ok && v != "" {
		return v
	}
	return "customer-portal"
}

// RequestedScopes returns the configured scopes with "openid" first and
// duplicates removed.
func (c *Config) RequestedScopes() []string {
	return strutils.RemoveDuplicatesStable(append([]string{oidc.ScopeOpenID}, c.Scopes...), false)
}

// HttpClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

// HttpClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HttpClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withLogoutReturnTo       string
	withAudience             string
	withScopes               []string
	withResponseType         string
	withNamespace            string
	withPortalRoutes         map[string]string
	withCallbackRoute        string
	withVerifyIdTokens       bool
	withSupportedSigningAlgs []Alg
	withProviderCA           string
	withPublicKeys           []string
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{
		withScopes:               DefaultScopes(),
		withResponseType:         DefaultResponseType,
		withNamespace:            DefaultNamespace,
		withPortalRoutes:         DefaultPortalRoutes(),
		withCallbackRoute:        DefaultCallbackRoute,
		withSupportedSigningAlgs: []Alg{RS256},
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogoutReturnTo provides an optional post logout address.  It defaults
// to the origin of the redirect URL.
func WithLogoutReturnTo(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogoutReturnTo = u
		}
	}
}

// WithAudience provides an optional audience to request an access token for
func WithAudience(aud string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudience = aud
		}
	}
}

// WithScopes provides an optional list of scopes for the provider's config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && len(scopes) > 0 {
			o.withScopes = scopes
		}
	}
}

// WithResponseType provides an optional response type
func WithResponseType(rt string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && rt != "" {
			o.withResponseType = rt
		}
	}
}

// WithNamespace provides an optional custom claims namespace
func WithNamespace(ns string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && ns != "" {
			o.withNamespace = ns
		}
	}
}

// WithPortalRoutes provides an optional role to portal view mapping
func WithPortalRoutes(routes map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && len(routes) > 0 {
			o.withPortalRoutes = routes
		}
	}
}

// WithCallbackRoute provides an optional callback route
func WithCallbackRoute(route string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && route != "" {
			o.withCallbackRoute = route
		}
	}
}

// WithVerifyIdTokens enables id_token verification
func WithVerifyIdTokens() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withVerifyIdTokens = true
		}
	}
}

// WithSupportedSigningAlgs provides an optional list of supported signing
// algorithms
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok && len(algs) > 0 {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithPublicKeys provides optional PEM encoded id_token verification keys
func WithPublicKeys(keys ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPublicKeys = keys
		}
	}
}
