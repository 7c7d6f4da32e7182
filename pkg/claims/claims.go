// Package claims decodes Keycloak bearer tokens into a typed claims set
// without verifying them.
//
// [Decode] establishes shape, not trust: anything it returns must either
// come from a gateway that already checked the signature or be passed
// through a verifier. Decoding never panics and never returns an error;
// a token that cannot be decoded yields nil.
package claims

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Access holds the roles granted at one scope (the realm, or one client).
type Access struct {
	Roles []string `json:"roles"`
}

// Claims is the decoded payload of a Keycloak access token.
//
// Known claims are typed fields. Every other top-level claim is kept in
// Extra, keyed by its JSON name. A Claims value is treated as read-only
// once decoded.
type Claims struct {
	Subject           string            `json:"sub"`
	PreferredUsername string            `json:"preferred_username,omitempty"`
	Email             string            `json:"email,omitempty"`
	Issuer            string            `json:"iss,omitempty"`
	AuthorizedParty   string            `json:"azp,omitempty"`
	Scope             string            `json:"scope,omitempty"`
	Audience          jwt.ClaimStrings  `json:"aud,omitempty"`
	ExpiresAt         *jwt.NumericDate  `json:"exp,omitempty"`
	IssuedAt          *jwt.NumericDate  `json:"iat,omitempty"`
	NotBefore         *jwt.NumericDate  `json:"nbf,omitempty"`
	RealmAccess       *Access           `json:"realm_access,omitempty"`
	ResourceAccess    map[string]Access `json:"resource_access,omitempty"`

	// Extra holds provider-specific claims not modelled above.
	Extra map[string]any `json:"-"`
}

var knownClaims = map[string]struct{}{
	"sub": {}, "preferred_username": {}, "email": {}, "iss": {}, "azp": {},
	"scope": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {},
	"realm_access": {}, "resource_access": {},
}

// claimsFields has Claims' fields without its methods, so the JSON
// codecs do not recurse.
type claimsFields Claims

// UnmarshalJSON decodes the typed claims and collects the rest into
// Extra. The payload must be a JSON object.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errMalformed
	}

	var fields claimsFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var extra map[string]any
	for key, value := range raw {
		if _, known := knownClaims[key]; known {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = v
	}

	*c = Claims(fields)
	c.Extra = extra
	return nil
}

// MarshalJSON writes the typed claims and merges Extra back in. Typed
// fields win over Extra entries with the same name.
func (c Claims) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(claimsFields(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return typed, nil
	}

	merged := make(map[string]json.RawMessage, len(c.Extra)+8)
	for k, v := range c.Extra {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = b
	}
	var typedMap map[string]json.RawMessage
	if err := json.Unmarshal(typed, &typedMap); err != nil {
		return nil, err
	}
	for k, v := range typedMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Header is the decoded JOSE header of a token.
type Header struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
	Type      string `json:"typ,omitempty"`
}

// Decode parses the payload segment of token. It returns nil when the
// token has fewer than two dot-separated segments, when the payload is
// not base64url, or when it is not a JSON object of the expected shape.
// The signature is not checked.
func Decode(token string) *Claims {
	segment, ok := segmentAt(token, 1)
	if !ok {
		return nil
	}
	data, err := decodeSegment(segment)
	if err != nil {
		return nil
	}
	var c Claims
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	return &c
}

// DecodeHeader parses the header segment of token.
func DecodeHeader(token string) (*Header, error) {
	segment, ok := segmentAt(token, 0)
	if !ok {
		return nil, errMalformed
	}
	data, err := decodeSegment(segment)
	if err != nil {
		return nil, err
	}
	if !isObject(data) {
		return nil, errMalformed
	}
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func segmentAt(token string, i int) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return "", false
	}
	return parts[i], true
}

var urlSafe = strings.NewReplacer("-", "+", "_", "/")

// decodeSegment accepts base64url or standard base64, padded or not.
func decodeSegment(segment string) ([]byte, error) {
	s := strings.TrimRight(urlSafe.Replace(segment), "=")
	return base64.RawStdEncoding.DecodeString(s)
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
