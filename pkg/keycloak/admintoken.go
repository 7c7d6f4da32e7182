package keycloak

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

const tracerName = "github.com/StricklySoft/clinic-hub/pkg/keycloak"

const (
	// DefaultMargin is how long before expiry a cached token stops being
	// handed out.
	DefaultMargin = 60 * time.Second

	// DefaultExpiresIn is assumed when the token response has no usable
	// expires_in.
	DefaultExpiresIn = 60 * time.Second

	// DefaultTimeout bounds each call to the identity provider.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody bounds how much of an error response is kept for
	// diagnostics.
	maxErrorBody = 512
	maxBody      = 1 << 20
)

// AdminConfig identifies the service client used for the
// client-credentials grant.
type AdminConfig struct {
	Endpoints    Endpoints
	ClientID     string
	ClientSecret Secret

	// Margin defaults to [DefaultMargin] when zero.
	Margin time.Duration
}

// AdminOption configures an [AdminTokenCache].
type AdminOption func(*AdminTokenCache)

// WithAdminHTTPClient sets the client used for the token exchange.
func WithAdminHTTPClient(c HTTPClient) AdminOption {
	return func(a *AdminTokenCache) { a.client = c }
}

// WithTokenStore replaces the default [MemoryTokenStore].
func WithTokenStore(s TokenStore) AdminOption {
	return func(a *AdminTokenCache) { a.store = s }
}

// WithAdminClock replaces time.Now.
func WithAdminClock(now func() time.Time) AdminOption {
	return func(a *AdminTokenCache) { a.now = now }
}

// AdminTokenCache obtains an admin access token through the
// client-credentials grant and reuses it until it is about to expire.
//
// Refreshes are not serialized. Callers that race past expiry may each
// exchange credentials once; the last token saved wins, and any of them
// is valid.
type AdminTokenCache struct {
	cfg    AdminConfig
	client HTTPClient
	store  TokenStore
	now    func() time.Time
	tracer trace.Tracer
}

// NewAdminTokenCache creates an AdminTokenCache.
func NewAdminTokenCache(cfg AdminConfig, opts ...AdminOption) *AdminTokenCache {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultMargin
	}
	a := &AdminTokenCache{
		cfg:    cfg,
		client: &http.Client{Timeout: DefaultTimeout},
		store:  NewMemoryTokenStore(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// tokenResponse is the subset of the token endpoint's JSON we read.
type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
}

// lifetime reads expires_in as seconds. Providers send it as an integer,
// a float or a numeric string; anything else, or a non-positive value,
// yields [DefaultExpiresIn].
func (tr tokenResponse) lifetime() time.Duration {
	raw := strings.Trim(strings.TrimSpace(string(tr.ExpiresIn)), `"`)
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(secs > 0 && secs < math.MaxInt64/float64(time.Second)) {
		return DefaultExpiresIn
	}
	return time.Duration(secs * float64(time.Second))
}

// GetAdminToken returns a cached token when it is valid for longer than
// the margin and otherwise exchanges the client credentials for a new
// one.
//
// Error codes returned:
//   - [sserr.CodeUpstreamAuthFailure]: the token endpoint answered non-2xx
//     or without an access token; details carry "status" and "body"
//   - [sserr.CodeUpstream]: the token endpoint could not be reached
func (a *AdminTokenCache) GetAdminToken(ctx context.Context) (string, error) {
	now := a.now()
	cached, ok, err := a.store.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "keycloak: admin token store unavailable, refreshing", "error", err)
	} else if ok && cached.usable(now, a.cfg.Margin) {
		return cached.AccessToken, nil
	}

	token, err := a.exchange(ctx)
	if err != nil {
		return "", err
	}
	if err := a.store.Save(ctx, token); err != nil {
		slog.WarnContext(ctx, "keycloak: failed to cache admin token", "error", err)
	}
	return token.AccessToken, nil
}

// Invalidate drops the cached token so that the next
// [AdminTokenCache.GetAdminToken] exchanges credentials again. With a
// shared store this affects every replica.
func (a *AdminTokenCache) Invalidate(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "keycloak: failed to clear cached admin token")
	}
	slog.InfoContext(ctx, "keycloak: admin token invalidated",
		"realm", a.cfg.Endpoints.Realm,
		"client_id", a.cfg.ClientID,
	)
	return nil
}

func (a *AdminTokenCache) exchange(ctx context.Context) (_ CachedToken, retErr error) {
	ctx, span := a.tracer.Start(ctx, "keycloak.ExchangeClientCredentials", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
	}()
	span.SetAttributes(
		attribute.String("keycloak.realm", a.cfg.Endpoints.Realm),
		attribute.String("keycloak.client_id", a.cfg.ClientID),
	)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret.Value()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoints.Token(), strings.NewReader(form.Encode()))
	if err != nil {
		return CachedToken{}, sserr.Wrap(err, sserr.CodeInternalConfiguration, "keycloak: invalid token endpoint")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return CachedToken{}, sserr.Wrap(err, sserr.CodeUpstream, "keycloak: token endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return CachedToken{}, sserr.Wrap(err, sserr.CodeUpstream, "keycloak: failed to read token response")
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CachedToken{}, sserr.Newf(sserr.CodeUpstreamAuthFailure,
			"keycloak: token endpoint returned status %d", resp.StatusCode).
			WithDetails(map[string]any{
				"status": resp.StatusCode,
				"body":   truncate(body, maxErrorBody),
			})
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return CachedToken{}, sserr.New(sserr.CodeUpstreamAuthFailure,
			"keycloak: token endpoint returned no access token").
			WithDetail("status", resp.StatusCode)
	}

	return CachedToken{AccessToken: tr.AccessToken, ExpiresAt: a.now().Add(tr.lifetime())}, nil
}

func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
