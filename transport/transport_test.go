package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) GetAccessToken() string { return string(s) }

func TestAugment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		url      string
		token    string
		domain   string
		wantAuth string
	}{
		{name: "api", url: "https://api.example.com/policies", token: "AAA", domain: "tenant.us.auth0.com", wantAuth: "Bearer AAA"},
		{name: "no-token", url: "https://api.example.com/policies", domain: "tenant.us.auth0.com"},
		{name: "provider", url: "https://tenant.us.auth0.com/userinfo", token: "AAA", domain: "tenant.us.auth0.com"},
		{name: "provider-case", url: "https://Tenant.US.auth0.com/userinfo", token: "AAA", domain: "tenant.us.auth0.com"},
		{name: "provider-subdomain", url: "https://cdn.tenant.us.auth0.com/x", token: "AAA", domain: "tenant.us.auth0.com"},
		{name: "lookalike", url: "https://eviltenant.us.auth0.com/x", token: "AAA", domain: "tenant.us.auth0.com", wantAuth: "Bearer AAA"},
		{name: "issuer-url-domain", url: "https://127.0.0.1:8443/userinfo", token: "AAA", domain: "https://127.0.0.1:8443/"},
		{name: "domain-with-port", url: "https://127.0.0.1:9000/api", token: "AAA", domain: "127.0.0.1:8443"},
		{name: "same-host-other-port", url: "http://127.0.0.1:9000/api", token: "AAA", domain: "https://127.0.0.1:8443"},
		{name: "other-host-same-ip", url: "http://localhost:9000/api", token: "AAA", domain: "https://127.0.0.1:8443", wantAuth: "Bearer AAA"},
		{name: "empty-domain", url: "https://api.example.com/", token: "AAA", wantAuth: "Bearer AAA"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			req, err := http.NewRequest(http.MethodGet, tt.url, nil)
			require.NoError(err)
			got := Augment(req, tt.token, tt.domain)
			assert.Equal(tt.wantAuth, got.Header.Get("Authorization"))
			assert.Empty(req.Header.Get("Authorization"), "the original request must not be modified")
			if tt.wantAuth == "" {
				assert.Same(req, got)
			}
		})
	}
	assert.Nil(t, Augment(nil, "AAA", "tenant.us.auth0.com"))
}

func TestBearer(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	b, err := NewBearer(staticToken("AAA"), "tenant.us.auth0.com")
	require.NoError(err)
	resp, err := b.Client().Get(srv.URL)
	require.NoError(err)
	resp.Body.Close()
	assert.Equal("Bearer AAA", got)

	// the test server is the provider here
	b, err = NewBearer(staticToken("AAA"), srv.URL)
	require.NoError(err)
	resp, err = b.Client().Get(srv.URL)
	require.NoError(err)
	resp.Body.Close()
	assert.Empty(got)

	_, err = NewBearer(nil, "tenant.us.auth0.com")
	assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
}
