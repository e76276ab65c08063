// Package jwt decodes the payload of compact serialized JWTs and, when asked
// to, verifies their signatures against a KeySet.
package jwt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Decode returns the claims carried in the payload of a compact serialized
// JWT.  The signature is NOT verified; see KeySet for that.
//
// Decode never fails: a token that isn't three dot separated segments, or
// whose payload isn't base64url encoded JSON, yields an empty claims map and
// the reason is logged (see WithLogger).
func Decode(token string, opt ...Option) map[string]interface{} {
	const op = "jwt.Decode"
	if token == "" {
		return map[string]interface{}{}
	}
	opts := getDecodeOpts(opt...)
	claims := map[string]interface{}{}
	if err := Claims(token, &claims); err != nil {
		opts.withLogger.Error("unable to decode token", "op", op, "error", err)
		return map[string]interface{}{}
	}
	if claims == nil {
		// a payload of "null"
		return map[string]interface{}{}
	}
	return claims
}

// Claims unmarshals the payload of a compact serialized JWT into claims.
// The signature is NOT verified.
func Claims(token string, claims interface{}) error {
	const op = "jwt.Claims"
	if token == "" {
		return fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrInvalidParameter)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: token has %d segments, want 3: %w", op, len(parts), ErrMalformedToken)
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return fmt.Errorf("%s: payload is not base64url: %v: %w", op, err, ErrMalformedToken)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: payload is not a JSON object: %v: %w", op, err, ErrMalformedToken)
	}
	return nil
}

// decodeSegment restores the standard base64 alphabet and padding before
// decoding, which accepts both padded and unpadded url-safe input.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.NewReplacer("-", "+", "_", "/").Replace(seg)
	if n := len(seg) % 4; n != 0 {
		seg += strings.Repeat("=", 4-n)
	}
	return base64.StdEncoding.DecodeString(seg)
}
