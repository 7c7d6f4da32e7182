package jwks

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Source records which representation a key was published in.
type Source int

const (
	// SourceCertificate means the key came from the first x5c certificate.
	SourceCertificate Source = iota + 1
	// SourceParameters means the key was rebuilt from the RSA n/e values.
	SourceParameters
)

// String returns the JWK member the key was read from.
func (s Source) String() string {
	switch s {
	case SourceCertificate:
		return "x5c"
	case SourceParameters:
		return "n/e"
	default:
		return "unknown"
	}
}

// Key is a resolved signing key. Whatever form the provider published,
// Public holds the canonical RSA public key.
type Key struct {
	ID        string
	Algorithm string
	Public    *rsa.PublicKey
	Source    Source
	FetchedAt time.Time
}

// jwk is one entry of a JWKS document. Only members needed for RSA
// signature keys are decoded.
type jwk struct {
	Kty string   `json:"kty"`
	Kid string   `json:"kid"`
	Alg string   `json:"alg"`
	Use string   `json:"use"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5C []string `json:"x5c"`
}

type document struct {
	Keys []jwk `json:"keys"`
}

var errNotSigningKey = errors.New("jwks: not an RSA signing key")

// resolve turns a published JWK into a Key. The certificate chain is
// preferred; the RSA parameters are used when it is absent or unusable.
func (k jwk) resolve(fetchedAt time.Time) (*Key, error) {
	if k.Kid == "" || k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
		return nil, errNotSigningKey
	}

	key := &Key{ID: k.Kid, Algorithm: k.Alg, FetchedAt: fetchedAt}

	if len(k.X5C) > 0 {
		if pub, err := publicKeyFromCertificate(k.X5C[0]); err == nil {
			key.Public, key.Source = pub, SourceCertificate
			return key, nil
		}
	}

	pub, err := publicKeyFromParameters(k.N, k.E)
	if err != nil {
		return nil, err
	}
	key.Public, key.Source = pub, SourceParameters
	return key, nil
}

// x5c entries are standard (not URL-safe) base64 DER.
func publicKeyFromCertificate(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to decode x5c certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to parse x5c certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("jwks: x5c certificate holds %T, want RSA", cert.PublicKey)
	}
	return pub, nil
}

func publicKeyFromParameters(nB64, eB64 string) (*rsa.PublicKey, error) {
	if nB64 == "" || eB64 == "" {
		return nil, errors.New("jwks: RSA key missing n or e")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to decode RSA exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, errors.New("jwks: RSA exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}
