// Package oidc is the portal's client for its OpenID Connect provider.  It
// builds implicit flow authorization requests (response_type "token
// id_token"), logout addresses, fetches user info, performs the silent
// session check (prompt=none) and, when configured to, verifies id_token
// signatures against the provider's published keys.
//
// The provider is never reached server side for tokens: they arrive in the
// redirect fragment, see package callback.
package oidc
