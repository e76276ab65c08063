package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/axa-poc/portalauth/browser"
	"github.com/axa-poc/portalauth/callback"
	"github.com/axa-poc/portalauth/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

// fakeProvider is a Provider that never leaves the process.
type fakeProvider struct {
	config *oidc.Config

	mu            sync.Mutex
	states        []oidc.State
	authURLErr    error
	userInfo      map[string]interface{}
	userInfoErr   error
	userInfoCalls int
	checkResult   *callback.Result
	checkErr      error
	verifyErr     error
	verifyNonces  []string
}

var _ Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Config() *oidc.Config { return p.config }

func (p *fakeProvider) AuthURL(_ context.Context, s oidc.State, _ ...oidc.Option) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authURLErr != nil {
		return "", p.authURLErr
	}
	p.states = append(p.states, s)
	return "https://tenant.example.com/authorize?" + url.Values{"state": {s.Id()}, "nonce": {s.Nonce()}}.Encode(), nil
}

func (p *fakeProvider) LogoutURL() (string, error) {
	return "https://tenant.example.com/v2/logout?client_id=client-1&returnTo=https%3A%2F%2Fportal.example.com", nil
}

func (p *fakeProvider) UserInfo(_ context.Context, _ oidc.AccessToken, claims interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoCalls++
	if p.userInfoErr != nil {
		return p.userInfoErr
	}
	data, err := json.Marshal(p.userInfo)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, claims)
}

func (p *fakeProvider) CheckSession(_ context.Context, s oidc.State, _ ...oidc.Option) (*callback.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
	return p.checkResult, p.checkErr
}

func (p *fakeProvider) VerifyIdToken(_ context.Context, _ oidc.IdToken, nonce string, _ ...oidc.Option) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyNonces = append(p.verifyNonces, nonce)
	return p.verifyErr
}

func (p *fakeProvider) lastState() oidc.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.states) == 0 {
		return nil
	}
	return p.states[len(p.states)-1]
}

type fixture struct {
	provider *fakeProvider
	durable  *browser.MemoryStorage
	tab      *browser.MemoryStorage
	sched    *browser.TestScheduler
	nav      *browser.TestNavigator
	log      *bytes.Buffer
	m        *Manager
}

func newFixture(t *testing.T, href string, opt ...Option) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, href, nil, opt...)
}

func newFixtureWithConfig(t *testing.T, href string, cfgOpts []oidc.Option, opt ...Option) *fixture {
	t.Helper()
	require := require.New(t)
	c, err := oidc.NewConfig("tenant.example.com", "client-1", "https://portal.example.com/#!/callback", cfgOpts...)
	require.NoError(err)
	loc, err := browser.NewLocation(href)
	require.NoError(err)
	f := &fixture{
		provider: &fakeProvider{
			config:   c,
			userInfo: map[string]interface{}{"name": "Alice Doe", "email": "alice@example.com"},
		},
		durable: browser.NewMemoryStorage(),
		tab:     browser.NewMemoryStorage(),
		sched:   browser.NewTestScheduler(testStart),
		nav:     browser.NewTestNavigator(),
		log:     &bytes.Buffer{},
	}
	l := hclog.New(&hclog.LoggerOptions{Output: f.log, Level: hclog.Trace})
	opt = append([]Option{WithLogger(l)}, opt...)
	f.m, err = NewManager(f.provider, Host{
		Durable:    f.durable,
		Tab:        f.tab,
		Location:   loc,
		Scheduler:  f.sched,
		Redirector: f.nav,
		Navigator:  f.nav,
	}, opt...)
	require.NoError(err)
	return f
}

// testIdToken returns an unsigned compact JWT carrying claims.
func testIdToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return fmt.Sprintf("%s.%s.c2ln",
		enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`)),
		enc.EncodeToString(payload))
}

// testFragment encodes an authorization response fragment, leading "#"
// included.
func testFragment(kv ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return "#" + v.Encode()
}
