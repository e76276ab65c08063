// Package callback handles the provider's implicit flow redirect response:
// it parses the response fragment and relays it out of the address bar into
// tab storage before the in-app router sees it.
package callback

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Markers identifying a provider redirect fragment.
var markers = []string{"access_token=", "id_token=", "error="}

// Result is a successful implicit flow authorization response.
type Result struct {
	AccessToken string
	IdToken     string

	// ExpiresIn is the token lifetime in seconds as reported by the
	// provider.  It's 0 when the parameter is missing or not an integer.
	ExpiresIn int64

	TokenType string
	State     string
	Scope     string
}

// HasMarker reports whether fragment carries a provider response.
func HasMarker(fragment string) bool {
	for _, m := range markers {
		if strings.Contains(fragment, m) {
			return true
		}
	}
	return false
}

// Extract returns the first "#" separated segment of fragment that carries
// a provider response, e.g. "access_token=..." for
// "#!/callback#access_token=...".  The returned segment has no leading "#".
func Extract(fragment string) (string, bool) {
	for _, seg := range strings.Split(fragment, "#") {
		if HasMarker(seg) {
			return seg, true
		}
	}
	return "", false
}

// Parse decodes a provider response fragment.  A leading "#" and a leading
// "/" are ignored.
//
// Parse returns (nil, nil) when the fragment carries neither tokens nor an
// error.  A provider error is returned as an *AuthenErrorResponse, and so is
// a fragment that can't be decoded (code invalid_hash).
func Parse(fragment string) (*Result, error) {
	const op = "callback.Parse"
	f := strings.TrimPrefix(fragment, "#")
	f = strings.TrimPrefix(f, "/")
	if f == "" {
		return nil, nil
	}
	values, err := url.ParseQuery(f)
	if err != nil {
		return nil, &AuthenErrorResponse{
			Code:        ErrCodeInvalidHash,
			Description: fmt.Sprintf("%s: unable to decode fragment: %s", op, err),
		}
	}
	if code := values.Get("error"); code != "" {
		return nil, &AuthenErrorResponse{
			Code:        code,
			Description: values.Get("error_description"),
			State:       values.Get("state"),
			Uri:         values.Get("error_uri"),
		}
	}
	r := &Result{
		AccessToken: values.Get("access_token"),
		IdToken:     values.Get("id_token"),
		TokenType:   values.Get("token_type"),
		State:       values.Get("state"),
		Scope:       values.Get("scope"),
	}
	if r.AccessToken == "" && r.IdToken == "" {
		return nil, nil
	}
	if v := values.Get("expires_in"); v != "" {
		r.ExpiresIn, _ = leadingInt(v)
	}
	return r, nil
}

// leadingInt parses the integer prefix of s after leading white space, so
// "7200.5" and "7200s" read as 7200.  ok is false when there are no digits
// or the value overflows.
func leadingInt(s string) (n int64, ok bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
