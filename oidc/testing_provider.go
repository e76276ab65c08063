package oidc

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/axa-poc/portalauth/internal/strutils"
	"github.com/hashicorp/go-uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// testSessionCookie is set by an interactive /authorize and honoured by a
// later prompt=none request from the same client.
const testSessionCookie = "tp_session"

// TestProvider is a local implicit flow provider that makes writing tests
// much easier.  It serves discovery, "/certs", "/authorize" (including
// prompt=none), "/userinfo" and "/v2/logout" over TLS.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	accessToken         string
	expiresIn           int64
	customClaims        map[string]interface{}
	customAudience      string
	sessionActive       bool
	sessionID           string
	disableUserInfo     bool
	advertiseEndSession bool
	authorizeError      string
	logouts             []url.Values
	nowFunc             func() time.Time

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider.  A port of zero picks
// a free port.
func StartTestProvider(t *testing.T, port int) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:            t,
		replySubject: "auth0|r3qXcK2bix9eFECzsU3Sbmh0",
		replyUserinfo: map[string]interface{}{
			"name":  "Alice Doe",
			"email": "alice@example.com",
		},
		expiresIn: 7200,
		nowFunc:   time.Now,
	}
	var err error
	p.accessToken, err = uuid.GenerateUUID()
	require.NoError(err)
	p.sessionID, err = uuid.GenerateUUID()
	require.NoError(err)
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	if port == 0 {
		p.httpServer = httptest.NewUnstartedServer(p)
	} else {
		p.httpServer = httptestNewUnstartedServerWithPort(t, p, port)
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// SetClientID configures the client id required by /authorize and used as
// the id_token audience.
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetAllowedRedirectURIs configures the redirect URIs /authorize accepts.
// When none are configured any redirect URI is accepted.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the id_token.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the id_token.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetExpiresIn configures the expires_in value of authorization responses.
// Zero omits the parameter.
func (p *TestProvider) SetExpiresIn(seconds int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = seconds
}

// SetUserInfoReply configures the claims returned by /userinfo.
func (p *TestProvider) SetUserInfoReply(reply map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = reply
}

// SetSessionActive makes prompt=none requests succeed (or fail with
// login_required) regardless of cookies.
func (p *TestProvider) SetSessionActive(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionActive = active
}

// SetAuthorizeError makes /authorize answer with the given error code.
// An empty code restores normal behaviour.
func (p *TestProvider) SetAuthorizeError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorizeError = code
}

// SetNowFunc configures the clock used for id_token iat and exp.
func (p *TestProvider) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now != nil {
		p.nowFunc = now
	}
}

// AdvertiseEndSession adds an end_session_endpoint to discovery.
func (p *TestProvider) AdvertiseEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advertiseEndSession = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from the
// discovery config.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// AccessToken returns the access_token the provider issues.
func (p *TestProvider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessToken
}

// Logouts returns the query of every logout request received.
func (p *TestProvider) Logouts() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.logouts...)
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Issuer returns the provider's issuer, which is Addr() with a trailing "/".
func (p *TestProvider) Issuer() string { return p.httpServer.URL + "/" }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// IssueIdToken signs an id_token for nonce the way /authorize does.
func (p *TestProvider) IssueIdToken(nonce string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issueIdToken(nonce)
}

func (p *TestProvider) issueIdToken(nonce string) string {
	now := p.nowFunc()
	stdClaims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Issuer(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(time.Hour)),
		Audience:  jwt.Audience{p.clientID},
	}
	if p.customAudience != "" {
		stdClaims.Audience = jwt.Audience{p.customAudience}
	}
	privateClaims := map[string]interface{}{}
	if nonce != "" {
		privateClaims["nonce"] = nonce
	}
	for k, v := range p.customClaims {
		privateClaims[k] = v
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, stdClaims, privateClaims)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// redirectWithFragment appends the response to redirectURI as a fragment,
// the way implicit flow providers do (even when redirectURI already has one).
func (p *TestProvider) redirectWithFragment(w http.ResponseWriter, redirectURI string, v url.Values) {
	w.Header().Set("Location", redirectURI+"#"+v.Encode())
	w.WriteHeader(http.StatusFound)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	v := url.Values{}
	v.Set("error", errorCode)
	if errorMessage != "" {
		v.Set("error_description", errorMessage)
	}
	if s := qv.Get("state"); s != "" {
		v.Set("state", s)
	}
	p.redirectWithFragment(w, qv.Get("redirect_uri"), v)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			TokenEndpoint      string   `json:"token_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			UserinfoEndpoint   string   `json:"userinfo_endpoint,omitempty"`
			EndSessionEndpoint string   `json:"end_session_endpoint,omitempty"`
			ResponseTypes      []string `json:"response_types_supported"`
			Algs               []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:           p.Issuer(),
			AuthEndpoint:     p.Addr() + "/authorize",
			TokenEndpoint:    p.Addr() + "/oauth/token",
			JWKSURI:          p.Addr() + "/certs",
			UserinfoEndpoint: p.Addr() + "/userinfo",
			ResponseTypes:    []string{"token id_token", "id_token"},
			Algs:             []string{string(ES256)},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}
		if p.advertiseEndSession {
			reply.EndSessionEndpoint = p.Addr() + "/oidc/logout"
		}

		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/authorize":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(p.allowedRedirectURIs) > 0 && !strutils.StrListContains(p.allowedRedirectURIs, redirectURI) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if p.clientID != "" && qv.Get("client_id") != p.clientID {
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "unknown client")
			return
		}
		if p.authorizeError != "" {
			p.writeAuthErrorResponse(w, req, p.authorizeError, "")
			return
		}
		rt := qv.Get("response_type")
		if rt != "token id_token" && rt != "id_token token" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}
		if !strutils.StrListContains(strings.Fields(qv.Get("scope")), "openid") {
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		}
		nonce := qv.Get("nonce")
		if nonce == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing nonce parameter")
			return
		}
		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}

		if qv.Get("prompt") == "none" {
			c, err := req.Cookie(testSessionCookie)
			hasSession := err == nil && c.Value == p.sessionID
			if !p.sessionActive && !hasSession {
				p.writeAuthErrorResponse(w, req, "login_required", "Login required")
				return
			}
		} else {
			// interactive login always succeeds
			http.SetCookie(w, &http.Cookie{Name: testSessionCookie, Value: p.sessionID, Path: "/"})
		}

		v := url.Values{}
		v.Set("access_token", p.accessToken)
		v.Set("id_token", p.issueIdToken(nonce))
		v.Set("token_type", "Bearer")
		v.Set("state", state)
		if p.expiresIn != 0 {
			v.Set("expires_in", strconv.FormatInt(p.expiresIn, 10))
		}
		if s := qv.Get("scope"); s != "" {
			v.Set("scope", s)
		}
		p.redirectWithFragment(w, redirectURI, v)
		return

	case "/certs":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := p.writeJSON(w, p.jwks); err != nil {
			return
		}

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if req.Header.Get("Authorization") != "Bearer "+p.accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.replySubject}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		if err := p.writeJSON(w, reply); err != nil {
			return
		}

	case "/v2/logout", "/oidc/logout":
		p.logouts = append(p.logouts, req.URL.Query())
		p.sessionActive = false
		http.SetCookie(w, &http.Cookie{Name: testSessionCookie, Value: "", Path: "/", MaxAge: -1})
		to := req.URL.Query().Get("returnTo")
		if to == "" {
			to = req.URL.Query().Get("post_logout_redirect_uri")
		}
		if to == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Location", to)
		w.WriteHeader(http.StatusFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				Algorithm: string(ES256),
				Use:       "sig",
			},
		},
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)
	require.NotEmpty(port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
