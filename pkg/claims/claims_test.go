package claims

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/clinic-hub/internal/testutil"
	"github.com/StricklySoft/clinic-hub/internal/testutil/fixtures"
)

func keycloakPayload() map[string]any {
	return map[string]any{
		"sub":                fixtures.Subject,
		"preferred_username": fixtures.Username,
		"email":              fixtures.Email,
		"iss":                fixtures.Issuer,
		"azp":                "clinic-frontend",
		"scope":              "openid profile email",
		"aud":                "account",
		"exp":                1893456000,
		"iat":                1893452400,
		"realm_access":       map[string]any{"roles": []string{fixtures.RealmRoleStaff}},
		"resource_access": map[string]any{
			fixtures.IdentityClientID: map[string]any{"roles": []string{fixtures.RoleReadUsers}},
		},
		"session_state": "a1b2",
		"sid":           "c3d4",
		"acr":           1,
	}
}

func TestDecode_KeycloakToken(t *testing.T) {
	t.Parallel()

	token := testutil.UnsignedToken(t, map[string]any{"alg": "RS256", "kid": fixtures.KeyID}, keycloakPayload())

	c := Decode(token)
	require.NotNil(t, c)

	assert.Equal(t, fixtures.Subject, c.Subject)
	assert.Equal(t, fixtures.Username, c.PreferredUsername)
	assert.Equal(t, fixtures.Email, c.Email)
	assert.Equal(t, fixtures.Issuer, c.Issuer)
	assert.Equal(t, "clinic-frontend", c.AuthorizedParty)
	assert.Equal(t, "openid profile email", c.Scope)
	assert.Equal(t, []string{"account"}, []string(c.Audience))
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, int64(1893456000), c.ExpiresAt.Unix())
	require.NotNil(t, c.RealmAccess)
	assert.Equal(t, []string{fixtures.RealmRoleStaff}, c.RealmAccess.Roles)
	assert.Equal(t, []string{fixtures.RoleReadUsers}, c.ResourceAccess[fixtures.IdentityClientID].Roles)

	assert.Equal(t, map[string]any{"session_state": "a1b2", "sid": "c3d4", "acr": float64(1)}, c.Extra)
}

func TestDecode_AudienceArray(t *testing.T) {
	t.Parallel()

	token := testutil.UnsignedToken(t, map[string]any{"alg": "RS256"}, map[string]any{
		"sub": "x", "aud": []string{"account", fixtures.PharmacyClientID},
	})
	c := Decode(token)
	require.NotNil(t, c)
	assert.Equal(t, []string{"account", fixtures.PharmacyClientID}, []string(c.Audience))
	assert.Nil(t, c.Extra)
}

func TestDecode_Failures(t *testing.T) {
	t.Parallel()

	enc := base64.RawURLEncoding.EncodeToString
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "single segment", token: "eyJzdWIiOiJ4In0"},
		{name: "payload not base64", token: "aGVhZGVy.!!!notbase64!!!.sig"},
		{name: "payload not json", token: "e30." + enc([]byte("not json")) + ".sig"},
		{name: "payload json string", token: "e30." + enc([]byte(`"sub"`)) + ".sig"},
		{name: "payload json array", token: "e30." + enc([]byte(`[1,2]`)) + ".sig"},
		{name: "payload json null", token: "e30." + enc([]byte(`null`)) + ".sig"},
		{name: "sub wrong type", token: "e30." + enc([]byte(`{"sub":42}`)) + ".sig"},
		{name: "roles wrong type", token: "e30." + enc([]byte(`{"realm_access":{"roles":"admin"}}`)) + ".sig"},
		{name: "exp wrong type", token: "e30." + enc([]byte(`{"exp":"tomorrow"}`)) + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Decode(tt.token))
		})
	}
}

func TestDecode_TwoSegmentsIsEnough(t *testing.T) {
	t.Parallel()

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"abc"}`))
	c := Decode("e30." + payload)
	require.NotNil(t, c)
	assert.Equal(t, "abc", c.Subject)
}

func TestDecode_AcceptsPaddingAndStandardAlphabet(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"sub":"a","note":">>>?"}`)
	std := base64.StdEncoding.EncodeToString(raw)
	url := base64.RawURLEncoding.EncodeToString(raw)

	for _, segment := range []string{std, url} {
		c := Decode("e30." + segment + ".sig")
		require.NotNil(t, c, "segment %q", segment)
		assert.Equal(t, ">>>?", c.Extra["note"])
	}
}

func TestDecode_Idempotent(t *testing.T) {
	t.Parallel()

	token := testutil.UnsignedToken(t, map[string]any{"alg": "RS256"}, keycloakPayload())
	assert.Equal(t, Decode(token), Decode(token))
	assert.Nil(t, Decode("garbage"))
	assert.Nil(t, Decode("garbage"))
}

func TestDecodeHeader(t *testing.T) {
	t.Parallel()

	token := testutil.UnsignedToken(t, map[string]any{"alg": "RS256", "kid": fixtures.KeyID, "typ": "JWT"}, map[string]any{"sub": "x"})
	h, err := DecodeHeader(token)
	require.NoError(t, err)
	assert.Equal(t, &Header{Algorithm: "RS256", KeyID: fixtures.KeyID, Type: "JWT"}, h)

	_, err = DecodeHeader("nodots")
	assert.Error(t, err)
	_, err = DecodeHeader(base64.RawURLEncoding.EncodeToString([]byte(`"RS256"`)) + ".e30")
	assert.Error(t, err)
	_, err = DecodeHeader("%%%.e30")
	assert.Error(t, err)
}

func TestClaims_MarshalMergesExtra(t *testing.T) {
	t.Parallel()

	c := Claims{
		Subject: fixtures.Subject,
		Extra:   map[string]any{"sid": "c3d4", "sub": "shadowed"},
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, fixtures.Subject, out["sub"])
	assert.Equal(t, "c3d4", out["sid"])
}

func TestClaims_JWTAccessors(t *testing.T) {
	t.Parallel()

	token := testutil.UnsignedToken(t, map[string]any{"alg": "RS256"}, keycloakPayload())
	c := Decode(token)
	require.NotNil(t, c)

	iss, _ := c.GetIssuer()
	sub, _ := c.GetSubject()
	aud, _ := c.GetAudience()
	exp, _ := c.GetExpirationTime()
	nbf, _ := c.GetNotBefore()
	assert.Equal(t, fixtures.Issuer, iss)
	assert.Equal(t, fixtures.Subject, sub)
	assert.Len(t, aud, 1)
	assert.NotNil(t, exp)
	assert.Nil(t, nbf)
}
