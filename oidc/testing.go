package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// testEncodePEM returns der as a PEM block of type typ.
func testEncodePEM(t *testing.T, typ string, der []byte, err error) string {
	t.Helper()
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}))
}

// TestGenerateKeys returns a PEM encoded P-256 key pair for signing test
// id_tokens with ES256.
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalECPrivateKey(k)
	priv = testEncodePEM(t, "EC PRIVATE KEY", privDER, err)
	pubDER, err := x509.MarshalPKIXPublicKey(k.Public())
	pub = testEncodePEM(t, "PUBLIC KEY", pubDER, err)
	return pub, priv
}

// TestSignJWT signs claims and privateClaims (any JSON object, usually a
// map) as a compact ES256 JWT using the PEM private key from
// TestGenerateKeys.
func TestSignJWT(t *testing.T, ecdsaPrivKeyPEM string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)
	block, _ := pem.Decode([]byte(ecdsaPrivKeyPEM))
	require.NotNil(block, "private key is not PEM encoded")
	key, err := x509.ParseECPrivateKey(block.Bytes)
	require.NoError(err)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	b := jwt.Signed(signer).Claims(claims)
	if privateClaims != nil {
		b = b.Claims(privateClaims)
	}
	raw, err := b.CompactSerialize()
	require.NoError(err)
	return raw
}

// TestGenerateCA returns a short lived, self signed PEM CA certificate that
// is also valid as a server certificate for hosts (names or IPs).
func TestGenerateCA(t *testing.T, hosts []string) string {
	t.Helper()
	require := require.New(t)

	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	require.NoError(err)

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "portalauth test CA"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		switch ip := net.ParseIP(h); {
		case ip != nil:
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		default:
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, k.Public(), k)
	return testEncodePEM(t, "CERTIFICATE", der, err)
}
