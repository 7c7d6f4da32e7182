package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// GenerateRSAKey returns a fresh 2048-bit RSA key.
func GenerateRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return key
}

// SignRS256 signs claims with key and sets the kid header when non-empty.
func SignRS256(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RS256 token")
	return signed
}

// SignES256 signs claims with a throwaway EC key. Used to check that
// only RS256 tokens are accepted.
func SignES256(t testing.TB, kid string, claims jwt.MapClaims) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// SignHS256 signs claims with an HMAC secret. Used for algorithm
// confusion tests.
func SignHS256(t testing.TB, kid string, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

// UnsignedToken builds "header.payload.sig" with base64url segments from
// arbitrary JSON values. It is what a gateway-trusted service receives.
func UnsignedToken(t testing.TB, header, payload any) string {
	t.Helper()
	h, err := json.Marshal(header)
	require.NoError(t, err)
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(h) + "." + enc.EncodeToString(p) + ".c2ln"
}

// ---------------------------------------------------------------------------
// JWK builders
// ---------------------------------------------------------------------------

// RSAParamsJWK returns a JWK publishing pub through its n/e parameters.
func RSAParamsJWK(kid string, pub *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// CertificateJWK returns a JWK publishing key's public half only through
// a self-signed x5c certificate.
func CertificateJWK(t testing.TB, kid string, key *rsa.PrivateKey) map[string]any {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "clinic-mouzaia-hub"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err, "failed to create certificate")
	return map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"x5c": []string{base64.StdEncoding.EncodeToString(der)},
	}
}

// ---------------------------------------------------------------------------
// Fake JWKS endpoint
// ---------------------------------------------------------------------------

// JWKSServer is an httptest server publishing a mutable key set and
// counting fetches.
type JWKSServer struct {
	*httptest.Server

	mu     sync.Mutex
	keys   []map[string]any
	status int
	hits   atomic.Int64
}

// NewJWKSServer starts a JWKS server publishing keys. It is closed when
// the test finishes.
func NewJWKSServer(t testing.TB, keys ...map[string]any) *JWKSServer {
	t.Helper()
	s := &JWKSServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *JWKSServer) serve(w http.ResponseWriter, _ *http.Request) {
	s.hits.Add(1)
	s.mu.Lock()
	status, keys := s.status, s.keys
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}
}

// SetKeys replaces the published key set, simulating rotation.
func (s *JWKSServer) SetKeys(keys ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

// SetStatus makes the server answer with status and no body.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits returns how many times the key set was fetched.
func (s *JWKSServer) Hits() int {
	return int(s.hits.Load())
}
