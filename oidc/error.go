package oidc

import (
	"errors"
)

// Parameter and configuration errors.
var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed = errors.New("id generation failed")
	ErrNotFound          = errors.New("not found")
)

// Errors for a redirect response that does not match the login transaction
// which started it.
var (
	ErrExpiredState         = errors.New("state is expired")
	ErrResponseStateInvalid = errors.New("response state does not match")
	ErrMissingIdToken       = errors.New("id_token is missing")
	ErrMissingAccessToken   = errors.New("access_token is missing")
)

// id_token verification errors. ErrIdTokenVerificationFailed covers a token
// that cannot be parsed at all.
var (
	ErrIdTokenVerificationFailed = errors.New("id_token verification failed")
	ErrInvalidSignature          = errors.New("invalid signature")
	ErrUnsupportedAlg            = errors.New("unsupported signing algorithm")
	ErrInvalidIssuer             = errors.New("invalid issuer")
	ErrInvalidAudience           = errors.New("invalid audience")
	ErrInvalidNonce              = errors.New("invalid nonce")
	ErrExpiredToken              = errors.New("token is expired")
)

// Errors from the provider's user info and session endpoints.
var (
	ErrUserInfoFailed     = errors.New("user info failed")
	ErrSessionCheckFailed = errors.New("session check failed")
)
