package keycloak

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// User is the sanitized view of a realm user returned to callers.
// Credentials, attributes and federation links are never copied over.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// ListOptions narrows a user listing. Zero values are omitted from the
// request.
type ListOptions struct {
	Search string
	First  int
	Max    int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.First > 0 {
		q.Set("first", strconv.Itoa(o.First))
	}
	if o.Max > 0 {
		q.Set("max", strconv.Itoa(o.Max))
	}
	return q
}

// TokenSource yields an admin bearer token. [AdminTokenCache] satisfies
// it.
type TokenSource interface {
	GetAdminToken(ctx context.Context) (string, error)
}

// Invalidator is implemented by token sources that can drop a cached
// token. [AdminTokenCache] implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// UsersClient lists realm users through the admin API.
type UsersClient struct {
	endpoints Endpoints
	tokens    TokenSource
	client    HTTPClient
	tracer    trace.Tracer
}

// NewUsersClient creates a UsersClient. If client is nil, an
// *http.Client with [DefaultTimeout] is used.
func NewUsersClient(endpoints Endpoints, tokens TokenSource, client HTTPClient) *UsersClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &UsersClient{
		endpoints: endpoints,
		tokens:    tokens,
		client:    client,
		tracer:    otel.Tracer(tracerName),
	}
}

// ListUsers returns the realm's users, sanitized.
//
// Error codes returned:
//   - errors from the [TokenSource], unchanged
//   - [sserr.CodeUpstream] when the admin API is unreachable or answers
//     non-2xx; details carry "status" and "details" (the response body,
//     truncated)
func (c *UsersClient) ListUsers(ctx context.Context, opts ListOptions) (_ []User, retErr error) {
	ctx, span := c.tracer.Start(ctx, "keycloak.ListUsers", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
	}()

	target := c.endpoints.Users()
	if q := opts.query(); len(q) > 0 {
		target += "?" + q.Encode()
	}

	status, body, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	// A 401 means the cached admin token was revoked or expired early.
	// Drop it and try once more with a fresh one.
	if status == http.StatusUnauthorized {
		if inv, ok := c.tokens.(Invalidator); ok {
			if err := inv.Invalidate(ctx); err != nil {
				return nil, err
			}
			span.AddEvent("admin token invalidated")
			if status, body, err = c.fetch(ctx, target); err != nil {
				return nil, err
			}
		}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status < 200 || status > 299 {
		return nil, sserr.Newf(sserr.CodeUpstream, "keycloak: admin API returned status %d", status).
			WithDetails(map[string]any{
				"status":  status,
				"details": truncate(body, maxErrorBody),
			})
	}

	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "keycloak: malformed users response")
	}
	if users == nil {
		users = []User{}
	}
	span.SetAttributes(attribute.Int("keycloak.users", len(users)))
	return users, nil
}

func (c *UsersClient) fetch(ctx context.Context, target string) (int, []byte, error) {
	token, err := c.tokens.GetAdminToken(ctx)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "keycloak: invalid users endpoint")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, sserr.Wrap(err, sserr.CodeUpstream, "keycloak: admin API unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, sserr.Wrap(err, sserr.CodeUpstream, "keycloak: failed to read users response")
	}
	return resp.StatusCode, body, nil
}
