package auth

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrNotFound         = errors.New("not found")

	// ErrSessionNotPersisted means a freshly saved session did not read back
	// as authenticated.
	ErrSessionNotPersisted = errors.New("session not persisted")

	// ErrAuthenticationTimeout is returned when authentication did not
	// complete in time.  Its message is shown to the user as is.
	ErrAuthenticationTimeout = errors.New("Authentication is taking longer than expected. Please try again.")
)
