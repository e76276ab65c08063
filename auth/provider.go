package auth

import (
	"context"

	"github.com/axa-poc/portalauth/callback"
	"github.com/axa-poc/portalauth/oidc"
)

// Provider is the identity provider as seen by the Manager.
type Provider interface {
	Config() *oidc.Config
	AuthURL(ctx context.Context, s oidc.State, opt ...oidc.Option) (string, error)
	LogoutURL() (string, error)
	UserInfo(ctx context.Context, t oidc.AccessToken, claims interface{}) error
	CheckSession(ctx context.Context, s oidc.State, opt ...oidc.Option) (*callback.Result, error)
	VerifyIdToken(ctx context.Context, t oidc.IdToken, nonce string, opt ...oidc.Option) error
}

// ensure that oidc.Provider implements the Provider interface
var _ Provider = (*oidc.Provider)(nil)
