package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/clinic-hub/internal/testutil"
	"github.com/StricklySoft/clinic-hub/internal/testutil/fixtures"
	"github.com/StricklySoft/clinic-hub/pkg/claims"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// stubAuthenticator returns fixed results and records tokens it saw.
type stubAuthenticator struct {
	claims *claims.Claims
	err    error
	tokens []string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*claims.Claims, error) {
	s.tokens = append(s.tokens, token)
	return s.claims, s.err
}

func readerClaims() *claims.Claims {
	return &claims.Claims{
		Subject:           fixtures.Subject,
		PreferredUsername: fixtures.Username,
		ResourceAccess: map[string]claims.Access{
			fixtures.IdentityClientID: {Roles: []string{fixtures.RoleReadUsers}},
		},
	}
}

func testPolicy() Policy {
	return Policy{
		"users.list":  ClientRole(fixtures.IdentityClientID, fixtures.RoleReadUsers),
		"users.admin": ClientRole(fixtures.IdentityClientID, "manage_users"),
		"staff.check": Authenticated,
		"realm.only":  RealmRole(fixtures.RealmRoleStaff),
	}
}

func serveGate(t *testing.T, authn Authenticator, operation, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	h := NewGate(authn, testPolicy(), "test-service").Require(operation)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			c := MustClaimsFromContext(r.Context())
			token, _ := TokenFromContext(r.Context())
			op, _ := OperationFromContext(r.Context())
			w.Header().Set("X-Subject", c.Subject)
			w.Header().Set("X-Token", token)
			w.Header().Set("X-Operation", op)
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestGate_Admits(t *testing.T) {
	t.Parallel()

	authn := &stubAuthenticator{claims: readerClaims()}
	rec, called := serveGate(t, authn, "users.list", "Bearer good-token")

	require.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fixtures.Subject, rec.Header().Get("X-Subject"))
	assert.Equal(t, "good-token", rec.Header().Get("X-Token"))
	assert.Equal(t, "users.list", rec.Header().Get("X-Operation"))
	assert.Equal(t, []string{"good-token"}, authn.tokens)
}

func TestGate_MissingToken(t *testing.T) {
	t.Parallel()

	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer ", "Bearer"} {
		t.Run(header, func(t *testing.T) {
			t.Parallel()
			authn := &stubAuthenticator{claims: readerClaims()}
			rec, called := serveGate(t, authn, "users.list", header)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"missing_token"}`, rec.Body.String())
			assert.Empty(t, authn.tokens, "authenticator must not run without a token")
		})
	}
}

func TestGate_InvalidToken(t *testing.T) {
	t.Parallel()

	rec, called := serveGate(t, &stubAuthenticator{}, "users.list", "Bearer garbage")

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_token"}`, rec.Body.String())
}

func TestGate_Forbidden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		operation string
		reason    string
	}{
		{"users.admin", "missing_client_role:manage_users"},
		{"realm.only", "missing_realm_role:clinic_staff"},
	}
	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			t.Parallel()
			rec, called := serveGate(t, &stubAuthenticator{claims: readerClaims()}, tt.operation, "Bearer secret-token-value")

			assert.False(t, called)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			body := testutil.DecodeJSON[map[string]any](t, rec.Body.Bytes())
			assert.Equal(t, "forbidden", body["error"])
			assert.Equal(t, tt.reason, body["reason"])
			assert.NotContains(t, rec.Body.String(), "secret-token-value")
		})
	}
}

func TestGate_AuthenticationOnlyOperation(t *testing.T) {
	t.Parallel()

	rec, called := serveGate(t, &stubAuthenticator{claims: &claims.Claims{Subject: "someone"}}, "staff.check", "Bearer t")
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_UpstreamFailure(t *testing.T) {
	t.Parallel()

	authn := &stubAuthenticator{err: sserr.Upstream("GET https://keycloak/certs: connection refused")}
	rec, called := serveGate(t, authn, "users.list", "Bearer t")

	assert.False(t, called)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := testutil.DecodeJSON[map[string]any](t, rec.Body.Bytes())
	assert.Equal(t, "upstream_error", body["error"])
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGate_UnknownOperationFailsClosed(t *testing.T) {
	t.Parallel()

	authn := &stubAuthenticator{claims: readerClaims()}
	rec, called := serveGate(t, authn, "users.delete", "Bearer t")

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "server_error", testutil.DecodeJSON[map[string]any](t, rec.Body.Bytes())["error"])
	assert.Empty(t, authn.tokens)
}

func TestGate_Check(t *testing.T) {
	t.Parallel()

	g := NewGate(&stubAuthenticator{claims: readerClaims()}, testPolicy(), "test-service")

	c, token, err := g.Check(context.Background(), "users.list", "Bearer abc")
	require.Nil(t, err)
	assert.Equal(t, fixtures.Subject, c.Subject)
	assert.Equal(t, "abc", token)

	_, _, err = g.Check(context.Background(), "users.admin", "Bearer abc")
	testutil.AssertErrorCode(t, err, sserr.CodeForbidden)
}

func TestNewGate_NilPolicy(t *testing.T) {
	t.Parallel()

	g := NewGate(&stubAuthenticator{}, nil, "svc")
	assert.NotNil(t, g.Policy())
	assert.Empty(t, g.Policy().Operations())
}
