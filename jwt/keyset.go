package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"gopkg.in/square/go-jose.v2"
)

// KeySet verifies the signature of a compact JWS token and returns the
// claims of its payload.
type KeySet interface {
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// JSONWebKeySet verifies tokens with the keys a provider publishes at its
// jwks_uri.  Keys are fetched on first use and again when a token names an
// unknown key id.
type JSONWebKeySet struct {
	remote *oidc.RemoteKeySet
}

// ensure that JSONWebKeySet and StaticKeySet implement the KeySet interface
var (
	_ KeySet = (*JSONWebKeySet)(nil)
	_ KeySet = (*StaticKeySet)(nil)
)

// NewJSONWebKeySet returns a KeySet backed by the JWKS at jwksURL.  The keys
// are fetched with the *http.Client carried by ctx under oauth2.HTTPClient
// (see oidc.HttpClientContext), or http.DefaultClient.  ctx must outlive the
// KeySet.
func NewJSONWebKeySet(ctx context.Context, jwksURL string) (*JSONWebKeySet, error) {
	const op = "jwt.NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwks url is empty: %w", op, ErrInvalidParameter)
	}
	return &JSONWebKeySet{remote: oidc.NewRemoteKeySet(ctx, jwksURL)}, nil
}

// VerifySignature implements KeySet.VerifySignature.
func (ks *JSONWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "jwt.(JSONWebKeySet).VerifySignature"
	payload, err := ks.remote.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, ErrInvalidSignature)
	}
	claims, err := payloadClaims(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

// StaticKeySet verifies tokens with a fixed list of public keys.
type StaticKeySet struct {
	keys []crypto.PublicKey
}

// NewStaticKeySet parses PEM encoded keys: PKIX ("PUBLIC KEY"), PKCS #1
// ("RSA PUBLIC KEY") or the key of an x509 certificate.  Only RSA and ECDSA
// keys are accepted.
func NewStaticKeySet(publicKeys []string) (*StaticKeySet, error) {
	const op = "jwt.NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: no public keys: %w", op, ErrInvalidParameter)
	}
	ks := &StaticKeySet{keys: make([]crypto.PublicKey, 0, len(publicKeys))}
	for i, k := range publicKeys {
		key, err := parsePublicKey(k)
		if err != nil {
			return nil, fmt.Errorf("%s: key %d: %w", op, i, err)
		}
		ks.keys = append(ks.keys, key)
	}
	return ks, nil
}

// VerifySignature implements KeySet.VerifySignature.  The first key that
// verifies the signature wins.
func (ks *StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	const op = "jwt.(StaticKeySet).VerifySignature"
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, ErrMalformedToken)
	}
	for _, key := range ks.keys {
		payload, err := jws.Verify(key)
		if err != nil {
			continue
		}
		claims, err := payloadClaims(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return claims, nil
	}
	return nil, fmt.Errorf("%s: no configured key verifies the signature: %w", op, ErrInvalidSignature)
}

func payloadClaims(payload []byte) (map[string]interface{}, error) {
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %v: %w", err, ErrMalformedToken)
	}
	return claims, nil
}

func parsePublicKey(s string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("not PEM encoded: %w", ErrInvalidParameter)
	}
	var (
		key interface{}
		err error
	)
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		var cert *x509.Certificate
		if cert, err = x509.ParseCertificate(block.Bytes); err == nil {
			key = cert.PublicKey
		}
	default:
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidParameter)
	}
	switch key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T: %w", key, ErrInvalidParameter)
	}
}
