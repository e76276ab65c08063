package oidc

import (
	"fmt"
	"time"
)

// State represents one login transaction.  Id() is sent as the "state"
// parameter and must come back unchanged in the redirect response; Nonce()
// is sent as the "nonce" parameter and must come back in the id_token.  The
// Id() and Nonce() cannot be equal.
type State interface {
	//	Id is a unique identifier and an opaque value used to maintain state
	//	between the oidc request and the callback. Id cannot equal the Nonce.
	Id() string

	//	Nonce is a unique nonce and a string value used to associate a Client
	//	session with an ID Token, and to mitigate replay attacks. Nonce cannot
	//	equal the Id
	Nonce() string

	// IsExpired returns true if the state has expired. Implementations should
	// supports a WithExpirySkew option and if none is provided it will use
	// a default skew (perhaps DefaultStateExpirySkew)
	IsExpired(opt ...Option) bool
}

// St represents the oidc state used for oidc flows.
type St struct {
	id         string
	nonce      string
	expiration time.Time
}

// ensure that St implements the State interface
var _ State = (*St)(nil)

// NewState creates a new State (*St) that expires after expireIn.
// Supported options: WithNow
func NewState(expireIn time.Duration, opt ...Option) (*St, error) {
	const op = "oidc.NewState"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getStOpts(opt...)
	nonce, err := NewId("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's nonce: %w", op, err)
	}
	id, err := NewId("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's id: %w", op, err)
	}
	return &St{
		id:         id,
		nonce:      nonce,
		expiration: opts.withNowFunc().Add(expireIn),
	}, nil
}

// RestoreState rebuilds a State from its persisted parts.
func RestoreState(id, nonce string, expiration time.Time) (*St, error) {
	const op = "oidc.RestoreState"
	switch {
	case id == "":
		return nil, fmt.Errorf("%s: id is empty: %w", op, ErrInvalidParameter)
	case nonce == "":
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	case id == nonce:
		return nil, fmt.Errorf("%s: id and nonce cannot be equal: %w", op, ErrInvalidParameter)
	case expiration.IsZero():
		return nil, fmt.Errorf("%s: expiration is missing: %w", op, ErrInvalidParameter)
	}
	return &St{id: id, nonce: nonce, expiration: expiration}, nil
}

func (s *St) Id() string    { return s.id }    // Id implements the State.Id() interface function
func (s *St) Nonce() string { return s.nonce } // Nonce implements the State.Nonce() interface function

// ExpiresAt returns the State's expiration.
func (s *St) ExpiresAt() time.Time { return s.expiration }

// DefaultStateExpirySkew defines a default time skew when checking a State's
// expiration.
const DefaultStateExpirySkew = 1 * time.Second

// IsExpired returns true if the state has expired. Supports the
// WithExpirySkew and WithNow options and if no skew is provided it will use
// the DefaultStateExpirySkew.
func (s *St) IsExpired(opt ...Option) bool {
	opts := getStOpts(opt...)
	return s.expiration.Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// stOptions is the set of available options for St functions
type stOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// stDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func stDefaults() stOptions {
	return stOptions{
		withExpirySkew: DefaultStateExpirySkew,
		withNowFunc:    time.Now,
	}
}

// getStOpts gets the state defaults and applies the opt overrides passed in
func getStOpts(opt ...Option) stOptions {
	opts := stDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
