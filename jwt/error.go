package jwt

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid signature")
)
