package callback

import "fmt"

// Provider error codes the session manager treats specially.
const (
	// ErrCodeInvalidToken and ErrCodeInvalidHash mean there was no real
	// callback data: an ordinary page load parses "unsuccessfully".
	ErrCodeInvalidToken = "invalid_token"
	ErrCodeInvalidHash  = "invalid_hash"

	// ErrCodeInvalidSignature is reported when identity token signature
	// verification is enabled and fails.
	ErrCodeInvalidSignature = "invalid_signature"
)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Code        string
	Description string
	State       string
	Uri         string
}

// ensure that AuthenErrorResponse implements the error interface
var _ error = (*AuthenErrorResponse)(nil)

// NewAuthenErrorResponse creates an error response with the given code and
// description.
func NewAuthenErrorResponse(code, description string) *AuthenErrorResponse {
	return &AuthenErrorResponse{Code: code, Description: description}
}

// Error implements the error interface.
func (r *AuthenErrorResponse) Error() string {
	if r.Description == "" {
		return r.Code
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Description)
}

// IsBenign reports whether the error only means "no callback data present".
func (r *AuthenErrorResponse) IsBenign() bool {
	if r == nil {
		return false
	}
	return r.Code == ErrCodeInvalidToken || r.Code == ErrCodeInvalidHash
}
