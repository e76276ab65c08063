package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/axa-poc/portalauth/callback"
	"github.com/axa-poc/portalauth/internal/strutils"
	"github.com/axa-poc/portalauth/jwt"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"gopkg.in/square/go-jose.v2"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

// Provider provides integration with a provider using the OIDC implicit
// flow.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	client   *http.Client

	// sessionClient shares client's transport but keeps provider cookies and
	// never follows redirects; it is used for the silent session check.
	sessionClient *http.Client

	jwksURL            string
	endSessionEndpoint string

	mu     sync.Mutex
	keySet jwt.KeySet

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// discoveryClaims are the discovery document fields go-oidc doesn't expose.
type discoveryClaims struct {
	JWKSURL            string `json:"jwks_uri"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// NewProvider creates and initializes a Provider.  Intializing the provider
// includes making an http request to the provider's discovery document.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HttpClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create cookie jar: %w", op, err)
	}
	p.sessionClient = &http.Client{
		Transport: client.Transport,
		Jar:       jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	provider, err := oidc.NewProvider(HttpClientContext(p.backgroundCtx, client), c.Issuer()) // makes http req to issuer for discovery
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.provider = provider

	var dc discoveryClaims
	if err := provider.Claims(&dc); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to read discovery document: %w", op, err)
	}
	p.jwksURL = dc.JWKSURL
	p.endSessionEndpoint = dc.EndSessionEndpoint
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's configuration.
func (p *Provider) Config() *Config {
	return p.config
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// implicit flow with the provider.  The provider redirects to the
// configured RedirectUrl with the tokens (or an error) in the fragment.
// Supported options: WithNow, WithPrompt, WithResponseMode
//
// See NewState() to create an oidc flow State with a valid Id and Nonce that
// will uniquely identify the user's authentication attempt through out the flow.
func (p *Provider) AuthURL(_ context.Context, s State, opt ...Option) (string, error) {
	const op = "Provider.AuthURL"
	if s == nil {
		return "", fmt.Errorf("%s: state is nil: %w", op, ErrNilParameter)
	}
	if s.Id() == s.Nonce() {
		return "", fmt.Errorf("%s: state id and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	opts := getAuthURLOpts(opt...)
	if s.IsExpired(WithNow(opts.withNowFunc)) {
		return "", fmt.Errorf("%s: state is expired: %w", op, ErrExpiredState)
	}

	oauth2Config := oauth2.Config{
		ClientID:    p.config.ClientId,
		RedirectURL: p.config.RedirectUrl,
		Endpoint:    p.provider.Endpoint(),
		Scopes:      p.config.RequestedScopes(),
	}
	authOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_type", p.config.ResponseType),
		oidc.Nonce(s.Nonce()),
	}
	if p.config.Audience != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("audience", p.config.Audience))
	}
	if opts.withPrompt != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", opts.withPrompt))
	}
	if opts.withResponseMode != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("response_mode", opts.withResponseMode))
	}
	return oauth2Config.AuthCodeURL(s.Id(), authOpts...), nil
}

// LogoutURL returns the provider logout address.  The discovered
// end_session_endpoint is used when the provider publishes one, otherwise
// the provider's "/v2/logout" endpoint.
func (p *Provider) LogoutURL() (string, error) {
	const op = "Provider.LogoutURL"
	q := url.Values{}
	q.Set("client_id", p.config.ClientId)
	if p.endSessionEndpoint != "" {
		u, err := url.Parse(p.endSessionEndpoint)
		if err != nil {
			return "", fmt.Errorf("%s: end_session_endpoint %q is invalid: %w", op, p.endSessionEndpoint, err)
		}
		existing := u.Query()
		for k, v := range q {
			existing[k] = v
		}
		if p.config.LogoutReturnTo != "" {
			existing.Set("post_logout_redirect_uri", p.config.LogoutReturnTo)
		}
		u.RawQuery = existing.Encode()
		return u.String(), nil
	}
	if p.config.LogoutReturnTo != "" {
		q.Set("returnTo", p.config.LogoutReturnTo)
	}
	return p.config.Issuer() + "v2/logout?" + q.Encode(), nil
}

// UserInfo gets the UserInfo claims from the provider using the access
// token.
func (p *Provider) UserInfo(ctx context.Context, t AccessToken, claims interface{}) error {
	const op = "Provider.UserInfo"
	if t == "" {
		return fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	oidcCtx := HttpClientContext(ctx, p.client)
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: string(t),
		TokenType:   "Bearer",
	})
	userinfo, err := p.provider.UserInfo(oidcCtx, tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %v: %w", op, err, ErrUserInfoFailed)
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %v: %w", op, err, ErrUserInfoFailed)
	}
	return nil
}

// CheckSession silently re-authenticates against the provider's session
// (prompt=none).  The authorization response's redirect is not followed:
// its fragment is parsed instead.  A provider error (e.g. login_required)
// is returned as a *callback.AuthenErrorResponse in the error chain.
// Supported options: WithNow
func (p *Provider) CheckSession(ctx context.Context, s State, opt ...Option) (*callback.Result, error) {
	const op = "Provider.CheckSession"
	authOpts := append([]Option{WithPrompt("none"), WithResponseMode("fragment")}, opt...)
	authURL, err := p.AuthURL(ctx, s, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	resp, err := p.sessionClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %v: %w", op, err, ErrSessionCheckFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: unexpected status %d: %w", op, resp.StatusCode, ErrSessionCheckFailed)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%s: redirect has no location: %w", op, ErrSessionCheckFailed)
	}

	var fragment string
	if i := strings.Index(location, "#"); i >= 0 {
		fragment = location[i:]
	}
	segment, ok := callback.Extract(fragment)
	if !ok {
		// some providers report errors in the query even for fragment
		// response modes
		if u, err := url.Parse(location); err == nil && u.Query().Get("error") != "" {
			q := u.Query()
			return nil, fmt.Errorf("%s: %w", op, &callback.AuthenErrorResponse{
				Code:        q.Get("error"),
				Description: q.Get("error_description"),
				State:       q.Get("state"),
				Uri:         q.Get("error_uri"),
			})
		}
		return nil, fmt.Errorf("%s: redirect carries no authorization response: %w", op, ErrSessionCheckFailed)
	}
	result, err := callback.Parse("#" + segment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%s: empty authorization response: %w", op, ErrSessionCheckFailed)
	}
	switch {
	case result.State != s.Id():
		return nil, fmt.Errorf("%s: authen state (%s) and response state (%s) are not equal: %w", op, s.Id(), result.State, ErrResponseStateInvalid)
	case result.AccessToken == "":
		return nil, fmt.Errorf("%s: %w", op, ErrMissingAccessToken)
	case result.IdToken == "":
		return nil, fmt.Errorf("%s: %w", op, ErrMissingIdToken)
	}
	if p.config.VerifyIdTokens {
		verifyOpts := getAuthURLOpts(opt...)
		if err := p.VerifyIdToken(ctx, IdToken(result.IdToken), s.Nonce(), WithNow(verifyOpts.withNowFunc)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else if err := CheckNonce(IdToken(result.IdToken), s.Nonce()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CheckNonce compares the nonce claim of an unverified id_token with the
// expected nonce.  A token without a nonce claim, or that can't be decoded,
// passes: only a nonce that is present and different fails.
func CheckNonce(t IdToken, nonce string) error {
	const op = "oidc.CheckNonce"
	var claims struct {
		Nonce string `json:"nonce"`
	}
	if err := t.Claims(&claims); err != nil || claims.Nonce == "" {
		return nil
	}
	if claims.Nonce != nonce {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	return nil
}

// VerifyIdToken will verify the inbound IdToken.  It verifies it's been
// signed by the provider with a supported algorithm, and validates the
// issuer, audience, expiry and nonce.
// Supported options: WithNow, WithExpirySkew
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIdToken(ctx context.Context, t IdToken, nonce string, opt ...Option) error {
	const op = "Provider.VerifyIdToken"
	if t == "" {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	opts := getVerifyOpts(opt...)

	jws, err := jose.ParseSigned(string(t))
	if err != nil {
		return fmt.Errorf("%s: malformed id_token: %v: %w", op, err, ErrIdTokenVerificationFailed)
	}
	if len(jws.Signatures) != 1 {
		return fmt.Errorf("%s: id_token must have exactly one signature: %w", op, ErrIdTokenVerificationFailed)
	}
	alg := jws.Signatures[0].Header.Algorithm
	supported := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		supported = append(supported, string(a))
	}
	if !strutils.StrListContains(supported, alg) {
		return fmt.Errorf("%s: id_token signed with %s: %w", op, alg, ErrUnsupportedAlg)
	}

	ks, err := p.getKeySet()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	allClaims, err := ks.VerifySignature(ctx, string(t))
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, ErrInvalidSignature)
	}

	raw, err := json.Marshal(allClaims)
	if err != nil {
		return fmt.Errorf("%s: unable to encode claims: %v: %w", op, err, ErrIdTokenVerificationFailed)
	}
	var claims struct {
		josejwt.Claims
		Nonce string `json:"nonce"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return fmt.Errorf("%s: unable to decode claims: %v: %w", op, err, ErrIdTokenVerificationFailed)
	}

	if claims.Issuer != p.config.Issuer() {
		return fmt.Errorf("%s: id_token issued by %q: %w", op, claims.Issuer, ErrInvalidIssuer)
	}
	if !claims.Audience.Contains(p.config.ClientId) {
		return fmt.Errorf("%s: id_token audience %v: %w", op, []string(claims.Audience), ErrInvalidAudience)
	}
	if claims.Expiry == nil {
		return fmt.Errorf("%s: id_token has no expiry: %w", op, ErrExpiredToken)
	}
	if opts.withNowFunc().After(claims.Expiry.Time().Add(opts.withExpirySkew)) {
		return fmt.Errorf("%s: id_token expired at %s: %w", op, claims.Expiry.Time(), ErrExpiredToken)
	}
	if claims.Nonce != nonce {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	return nil
}

// getKeySet returns the key set used to verify id_tokens, creating it on
// first use.
func (p *Provider) getKeySet() (jwt.KeySet, error) {
	const op = "Provider.getKeySet"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.keySet != nil {
		return p.keySet, nil
	}
	var ks jwt.KeySet
	var err error
	switch {
	case len(p.config.PublicKeys) > 0:
		ks, err = jwt.NewStaticKeySet(p.config.PublicKeys)
	case p.jwksURL != "":
		ks, err = jwt.NewJSONWebKeySet(HttpClientContext(p.backgroundCtx, p.client), p.jwksURL)
	default:
		return nil, fmt.Errorf("%s: provider publishes no jwks_uri and no public keys are configured: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.keySet = ks
	return ks, nil
}
