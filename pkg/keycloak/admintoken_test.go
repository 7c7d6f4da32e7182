package keycloak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/clinic-hub/internal/testutil"
	"github.com/StricklySoft/clinic-hub/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tokenEndpoint is a fake Keycloak token endpoint issuing numbered tokens.
type tokenEndpoint struct {
	*httptest.Server
	calls     atomic.Int64
	status    int
	expiresIn any
	lastForm  url.Values
	mu        sync.Mutex
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	e := &tokenEndpoint{status: http.StatusOK, expiresIn: 300}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := e.calls.Add(1)
		assert.NoError(t, r.ParseForm())
		e.mu.Lock()
		e.lastForm = r.PostForm
		status, expiresIn := e.status, e.expiresIn
		e.mu.Unlock()

		assert.Equal(t, "/realms/"+fixtures.Realm+"/protocol/openid-connect/token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":"unauthorized_client","error_description":"Invalid client secret"}`)
			return
		}
		body := fmt.Sprintf(`{"access_token":"admin-token-%d","token_type":"Bearer"`, n)
		if expiresIn != nil {
			body += fmt.Sprintf(`,"expires_in":%v`, expiresIn)
		}
		_, _ = io.WriteString(w, body+"}")
	}))
	t.Cleanup(e.Close)
	return e
}

func (e *tokenEndpoint) set(status int, expiresIn any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status, e.expiresIn = status, expiresIn
}

func (e *tokenEndpoint) form() url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastForm
}

func newCache(e *tokenEndpoint, clock *fakeClock, opts ...AdminOption) *AdminTokenCache {
	cfg := AdminConfig{
		Endpoints:    Endpoints{BaseURL: e.URL, Realm: fixtures.Realm},
		ClientID:     fixtures.IdentityClientID,
		ClientSecret: Secret("s3cr3t"),
	}
	return NewAdminTokenCache(cfg, append([]AdminOption{WithAdminClock(clock.Now)}, opts...)...)
}

func TestGetAdminToken_ExchangesClientCredentials(t *testing.T) {
	t.Parallel()

	e := newTokenEndpoint(t)
	token, err := newCache(e, newFakeClock()).GetAdminToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token-1", token)

	form := e.form()
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, fixtures.IdentityClientID, form.Get("client_id"))
	assert.Equal(t, "s3cr3t", form.Get("client_secret"))
}

func TestGetAdminToken_CacheHitMakesNoCall(t *testing.T) {
	t.Parallel()

	e := newTokenEndpoint(t)
	clock := newFakeClock()
	cache := newCache(e, clock)
	ctx := context.Background()

	first, err := cache.GetAdminToken(ctx)
	require.NoError(t, err)

	// 300s lifetime, 60s margin: still fresh after 239s.
	clock.Advance(239 * time.Second)
	second, err := cache.GetAdminToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), e.calls.Load())
}

func TestGetAdminToken_RefreshesInsideMargin(t *testing.T) {
	t.Parallel()

	e := newTokenEndpoint(t)
	clock := newFakeClock()
	cache := newCache(e, clock)
	ctx := context.Background()

	_, err := cache.GetAdminToken(ctx)
	require.NoError(t, err)

	clock.Advance(240 * time.Second)
	token, err := cache.GetAdminToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin-token-2", token)
	assert.Equal(t, int64(2), e.calls.Load())

	// The refreshed token is cached in turn.
	token, err = cache.GetAdminToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin-token-2", token)
	assert.Equal(t, int64(2), e.calls.Load())
}

func TestGetAdminToken_DefaultsExpiresIn(t *testing.T) {
	t.Parallel()

	for _, expiresIn := range []any{nil, 0, -5, "null", `"soon"`, "true", "1e300"} {
		t.Run(fmt.Sprint(expiresIn), func(t *testing.T) {
			t.Parallel()
			e := newTokenEndpoint(t)
			e.set(http.StatusOK, expiresIn)
			store := NewMemoryTokenStore()
			clock := newFakeClock()

			_, err := newCache(e, clock, WithTokenStore(store)).GetAdminToken(context.Background())
			require.NoError(t, err)

			cached, ok, err := store.Load(context.Background())
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, clock.Now().Add(DefaultExpiresIn), cached.ExpiresAt)
		})
	}
}

func TestGetAdminToken_LenientExpiresIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		expiresIn any
		want      time.Duration
	}{
		{"integer", 300, 300 * time.Second},
		{"float", "299.5", 299500 * time.Millisecond},
		{"string", `"300"`, 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newTokenEndpoint(t)
			e.set(http.StatusOK, tt.expiresIn)
			store := NewMemoryTokenStore()
			clock := newFakeClock()

			_, err := newCache(e, clock, WithTokenStore(store)).GetAdminToken(context.Background())
			require.NoError(t, err)

			cached, ok, err := store.Load(context.Background())
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, clock.Now().Add(tt.want), cached.ExpiresAt)
		})
	}
}

func TestGetAdminToken_DefaultLifetimeIsNeverReused(t *testing.T) {
	t.Parallel()

	// With the 60s fallback lifetime and a 60s margin the token is
	// already inside the margin, so every call refreshes.
	e := newTokenEndpoint(t)
	e.set(http.StatusOK, nil)
	cache := newCache(e, newFakeClock())

	for range 3 {
		_, err := cache.GetAdminToken(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), e.calls.Load())
}

func TestGetAdminToken_RejectedCredentials(t *testing.T) {
	t.Parallel()

	e := newTokenEndpoint(t)
	e.set(http.StatusUnauthorized, nil)

	_, err := newCache(e, newFakeClock()).GetAdminToken(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUpstreamAuthFailure)

	ssErr, _ := sserr.AsError(err)
	assert.Equal(t, http.StatusUnauthorized, ssErr.Details["status"])
	assert.Contains(t, ssErr.Details["body"], "unauthorized_client")
	assert.NotContains(t, err.Error(), "s3cr3t")
	assert.Equal(t, http.StatusBadGateway, ssErr.HTTPStatus())
}

func TestGetAdminToken_MissingAccessToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"expires_in":300}`)
	}))
	t.Cleanup(srv.Close)

	cache := NewAdminTokenCache(AdminConfig{Endpoints: Endpoints{BaseURL: srv.URL, Realm: fixtures.Realm}})
	_, err := cache.GetAdminToken(context.Background())
	testutil.AssertErrorCode(t, err, sserr.CodeUpstreamAuthFailure)
}

type failingHTTP struct{}

func (failingHTTP) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestGetAdminToken_Unreachable(t *testing.T) {
	t.Parallel()

	cache := NewAdminTokenCache(
		AdminConfig{Endpoints: Endpoints{BaseURL: fixtures.KeycloakBaseURL, Realm: fixtures.Realm}},
		WithAdminHTTPClient(failingHTTP{}),
	)
	_, err := cache.GetAdminToken(context.Background())
	testutil.AssertErrorCode(t, err, sserr.CodeUpstream)
	assert.True(t, sserr.IsRetryable(err))
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Load(context.Context) (CachedToken, bool, error) {
	return CachedToken{}, false, sserr.New(sserr.CodeDatabase, "redis down")
}

func (brokenStore) Save(context.Context, CachedToken) error {
	return sserr.New(sserr.CodeDatabase, "redis down")
}

func (brokenStore) Clear(context.Context) error {
	return sserr.New(sserr.CodeDatabase, "redis down")
}

func TestGetAdminToken_StoreFailureStillReturnsToken(t *testing.T) {
	t.Parallel()

	e := newTokenEndpoint(t)
	token, err := newCache(e, newFakeClock(), WithTokenStore(brokenStore{})).GetAdminToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token-1", token)
}

func TestGetAdminToken_ConcurrentRefreshIsIdempotent(t *testing.T) {
	t.Parallel()

	e := newTokenEndpoint(t)
	cache := newCache(e, newFakeClock())

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.GetAdminToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}()
	}
	wg.Wait()

	calls := e.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(1))
	assert.LessOrEqual(t, calls, int64(len(tokens)))
	for _, tok := range tokens {
		assert.NotEmpty(t, tok)
	}
}

func TestCachedToken_Usable(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tok := CachedToken{AccessToken: "t", ExpiresAt: now.Add(2 * time.Minute)}
	assert.True(t, tok.usable(now, time.Minute))
	assert.False(t, tok.usable(now.Add(time.Minute), time.Minute), "boundary is exclusive")
	assert.False(t, CachedToken{ExpiresAt: now.Add(time.Hour)}.usable(now, time.Minute))
}

func TestInvalidate_ForcesExchange(t *testing.T) {
	t.Parallel()
	e := newTokenEndpoint(t)
	cache := newCache(e, newFakeClock())
	ctx := context.Background()

	first, err := cache.GetAdminToken(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx))

	second, err := cache.GetAdminToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, int64(2), e.calls.Load())
}

func TestInvalidate_StoreFailure(t *testing.T) {
	t.Parallel()
	cache := newCache(newTokenEndpoint(t), newFakeClock(), WithTokenStore(brokenStore{}))
	testutil.RequireErrorCode(t, cache.Invalidate(context.Background()), sserr.CodeInternal)
}
