package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/axa-poc/portalauth/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `domain: tenant.us.auth0.com
client_id: client-1
redirect_url: http://localhost:3000/#!/callback
audience: https://api.example.com
scopes: [openid, email]
portal_routes:
  broker: broker-portal
  customer: customer-portal
signing_algs: [ES256]
db: /tmp/portal-test.db
log_level: debug
`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		path := writeFile(t, t.TempDir(), "config.yaml", testConfigYAML)
		c, err := LoadConfig(path)
		require.NoError(err)
		assert.Equal(&Config{
			Domain:       "tenant.us.auth0.com",
			ClientId:     "client-1",
			RedirectUrl:  "http://localhost:3000/#!/callback",
			Audience:     "https://api.example.com",
			Scopes:       []string{"openid", "email"},
			PortalRoutes: map[string]string{"broker": "broker-portal", "customer": "customer-portal"},
			SigningAlgs:  []string{"ES256"},
			DB:           "/tmp/portal-test.db",
			LogLevel:     "debug",
		}, c)
		assert.Equal(hclog.Debug, c.Level())
	})
	t.Run("env-overrides", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		path := writeFile(t, t.TempDir(), "config.yaml", testConfigYAML)
		t.Setenv("PORTAL_CLIENT_ID", "client-2")
		t.Setenv("PORTAL_SCOPES", "openid profile")
		t.Setenv("PORTAL_VERIFY_ID_TOKENS", "true")
		t.Setenv("PORTAL_LOG_LEVEL", "nonsense")
		c, err := LoadConfig(path)
		require.NoError(err)
		assert.Equal("client-2", c.ClientId)
		assert.Equal([]string{"openid", "profile"}, c.Scopes)
		assert.True(c.VerifyIdTokens)
		assert.Equal(hclog.Warn, c.Level())
	})
	t.Run("bad-bool", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", testConfigYAML)
		t.Setenv("PORTAL_VERIFY_ID_TOKENS", "maybe")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
	t.Run("missing-explicit-file", func(t *testing.T) {
		assert := assert.New(t)
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Truef(errors.Is(err, os.ErrNotExist), "wanted \"%s\" but got \"%s\"", os.ErrNotExist, err)
	})
	t.Run("bad-yaml", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", "domain: [")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		path := writeFile(t, t.TempDir(), "config.yaml", "domain: tenant.us.auth0.com\n")
		c, err := LoadConfig(path)
		require.NoError(err)
		assert.Equal(DefaultDBPath(), c.DB)
		assert.Equal("warn", c.LogLevel)
	})
}

func TestConfig_OIDCConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ca := oidc.TestGenerateCA(t, []string{"localhost"})
	caPath := writeFile(t, dir, "ca.pem", ca)
	pub, _ := oidc.TestGenerateKeys(t)

	t.Run("pem-from-file-and-inline", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{
			Domain:         "tenant.us.auth0.com",
			ClientId:       "client-1",
			RedirectUrl:    "http://localhost:3000/#!/callback",
			LogoutReturnTo: "http://localhost:3000/bye",
			Audience:       "https://api.example.com",
			VerifyIdTokens: true,
			SigningAlgs:    []string{"ES256"},
			ProviderCA:     caPath,
			PublicKeys:     []string{pub},
		}
		oc, err := c.OIDCConfig()
		require.NoError(err)
		assert.Equal(ca, oc.ProviderCA)
		assert.Equal([]string{pub}, oc.PublicKeys)
		assert.Equal([]oidc.Alg{oidc.ES256}, oc.SupportedSigningAlgs)
		assert.Equal("http://localhost:3000/bye", oc.LogoutReturnTo)
		assert.Equal("https://api.example.com", oc.Audience)
		assert.True(oc.VerifyIdTokens)
		assert.Equal(oidc.DefaultScopes(), oc.Scopes)
		assert.Equal(oidc.DefaultPortalRoutes(), oc.PortalRoutes)
	})
	t.Run("missing-ca-file", func(t *testing.T) {
		c := &Config{
			Domain:      "tenant.us.auth0.com",
			ClientId:    "client-1",
			RedirectUrl: "http://localhost:3000/#!/callback",
			ProviderCA:  filepath.Join(dir, "missing.pem"),
		}
		_, err := c.OIDCConfig()
		assert.Truef(t, errors.Is(err, os.ErrNotExist), "wanted \"%s\" but got \"%s\"", os.ErrNotExist, err)
	})
	t.Run("invalid", func(t *testing.T) {
		c := &Config{Domain: "tenant.us.auth0.com", RedirectUrl: "http://localhost:3000/"}
		_, err := c.OIDCConfig()
		assert.Truef(t, errors.Is(err, oidc.ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", oidc.ErrInvalidParameter, err)
	})
}
