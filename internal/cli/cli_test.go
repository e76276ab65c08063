package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/axa-poc/portalauth/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testOpener records the addresses the system browser would be asked to
// open.
type testOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *testOpener) open(u string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, u)
	return nil
}

func (o *testOpener) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.urls) == 0 {
		return ""
	}
	return o.urls[len(o.urls)-1]
}

func TestHost(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	out := &bytes.Buffer{}
	opener := &testOpener{}
	h, err := NewHost(filepath.Join(t.TempDir(), "portal.db"), "http://localhost:3000/", out, opener.open, nil)
	require.NoError(err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(h.Redirect(ctx, "http://localhost:3000/#!/callback"))
	require.NoError(h.Redirect(ctx, "http://localhost:30001/"))
	require.NoError(h.Redirect(ctx, "https://tenant.us.auth0.com/v2/logout"))
	assert.Equal([]string{"http://localhost:30001/", "https://tenant.us.auth0.com/v2/logout"}, opener.urls)
	next, ok := h.popNext()
	assert.True(ok)
	assert.Equal("http://localhost:3000/#!/callback", next)
	_, ok = h.popNext()
	assert.False(ok)

	require.NoError(h.Go(ctx, "home"))
	assert.Contains(out.String(), "view home\n")

	require.NoError(h.durable.SetItem("access_token", "AAA"))
	require.NoError(h.tab.SetItem("auth0_callback_hash", "#access_token=AAA"))
	durable, tab, err := h.Keys()
	require.NoError(err)
	assert.Equal([]string{"access_token"}, durable)
	assert.Equal([]string{"auth0_callback_hash"}, tab)

	require.NoError(h.Reset())
	durable, tab, err = h.Keys()
	require.NoError(err)
	assert.Empty(durable)
	assert.Empty(tab)
}

func TestHost_Follow(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	tp := oidc.StartTestProvider(t, 0)
	tp.SetClientID("client-1")
	oc, err := oidc.NewConfig(tp.Addr(), "client-1", "http://localhost:3000/#!/callback", oidc.WithProviderCA(tp.CACert()))
	require.NoError(err)
	p, err := oidc.NewProvider(oc)
	require.NoError(err)
	t.Cleanup(p.Done)

	out := &bytes.Buffer{}
	h, err := NewHost(filepath.Join(t.TempDir(), "portal.db"), "http://localhost:3000/", out, (&testOpener{}).open, nil)
	require.NoError(err)
	t.Cleanup(func() { _ = h.Close() })

	page, err := h.Follow(ctx, p)
	require.NoError(err)
	assert.Nil(page)

	require.NoError(h.Redirect(ctx, "http://localhost:3000/#!/profile"))
	page, err = h.Follow(ctx, p)
	require.NoError(err)
	require.NotNil(page)
	assert.Equal("home", page.Router.Current())
	assert.Equal("view home\n", out.String())
	_, ok := h.popNext()
	assert.False(ok)
}

func TestRootCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tp := oidc.StartTestProvider(t, 0)
	tp.SetClientID("client-1")
	tp.SetCustomClaims(map[string]interface{}{"https://axa-poc.com/role": "broker"})

	dir := t.TempDir()
	caPath := writeFile(t, dir, "ca.pem", tp.CACert())
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`domain: %s
client_id: client-1
redirect_url: http://localhost:3000/#!/callback
provider_ca: %s
signing_algs: [ES256]
verify_id_tokens: true
db: %s
`, tp.Addr(), caPath, filepath.Join(dir, "portal.db")))

	opener := &testOpener{}
	run := func(t *testing.T, args ...string) string {
		t.Helper()
		out := &bytes.Buffer{}
		cmd := NewRootCommand(Options{Out: out, Open: opener.open})
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		require.NoError(t, cmd.ExecuteContext(ctx))
		return out.String()
	}

	t.Run("login", func(t *testing.T) {
		assert := assert.New(t)
		out := run(t, "login")
		assert.Contains(out, "view home\n")
		assert.Contains(out, "open "+tp.Addr()+"/authorize?")
		assert.True(strings.HasPrefix(opener.last(), tp.Addr()+"/authorize?"))
	})

	t.Run("open", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		oc, err := oidc.NewConfig(tp.Addr(), "client-1", "http://localhost:3000/#!/callback", oidc.WithProviderCA(tp.CACert()))
		require.NoError(err)
		client, err := oc.HttpClient()
		require.NoError(err)
		client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		resp, err := client.Get(opener.last())
		require.NoError(err)
		resp.Body.Close()
		require.Equal(http.StatusFound, resp.StatusCode)

		out := run(t, "open", resp.Header.Get("Location"))
		assert.Equal("view callback\nview broker-portal\n", out)
	})

	t.Run("status", func(t *testing.T) {
		assert := assert.New(t)
		out := run(t, "status", "--claims")
		assert.Contains(out, "authenticated: true\n")
		assert.Contains(out, "role: broker (Broker)\n")
		assert.Contains(out, "name: Alice Doe\n")
		assert.Contains(out, "email: alice@example.com\n")
		assert.Contains(out, "portal: #!/broker-portal\n")
		assert.Contains(out, "nonce:")
	})

	t.Run("go-wrong-role", func(t *testing.T) {
		assert := assert.New(t)
		out := run(t, "go", "axa-portal")
		assert.Equal("view home\naxa-portal rejected\nview broker-portal\n", out)
	})

	t.Run("fetch", func(t *testing.T) {
		assert := assert.New(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(r.Header.Get("Authorization")))
		}))
		defer srv.Close()
		// the provider listens on 127.0.0.1 and ports are not compared, so
		// the API must be reached under another host name
		apiURL := strings.Replace(srv.URL, "127.0.0.1", "localhost", 1)
		require.NotEqual(t, srv.URL, apiURL)
		out := run(t, "fetch", apiURL)
		assert.Contains(out, "200 OK\n")
		assert.Contains(out, "Bearer "+tp.AccessToken())
	})

	t.Run("renew", func(t *testing.T) {
		assert := assert.New(t)
		tp.SetSessionActive(true)
		out := run(t, "renew")
		assert.Contains(out, "renewed, expires: ")
	})

	t.Run("storage", func(t *testing.T) {
		assert := assert.New(t)
		out := run(t, "storage")
		assert.Contains(out, "local access_token\n")
		assert.Contains(out, "local user_role\n")
		assert.NotContains(out, "session auth0_callback_hash\n")
	})

	t.Run("logout", func(t *testing.T) {
		assert := assert.New(t)
		out := run(t, "logout")
		assert.Contains(out, "open "+tp.Issuer()+"v2/logout?")
		out = run(t, "status")
		assert.Contains(out, "authenticated: false\n")
		assert.Contains(out, "role: customer (Customer)\n")
	})

	t.Run("storage-reset", func(t *testing.T) {
		assert := assert.New(t)
		run(t, "storage", "--reset")
		assert.Empty(run(t, "storage"))
	})
}
