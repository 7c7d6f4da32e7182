// Package jwks resolves an identity provider's RSA signing keys by key
// id, caching them with bounded capacity and a maximum age.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

const tracerName = "github.com/StricklySoft/clinic-hub/pkg/jwks"

const (
	// DefaultCapacity is the number of keys kept before the least
	// recently used one is evicted.
	DefaultCapacity = 5

	// DefaultMaxAge is how long a fetched key may be reused.
	DefaultMaxAge = 10 * time.Minute

	// DefaultFetchTimeout bounds a single key set fetch.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultMinRefetchInterval is the shortest gap between two fetches
	// triggered by kids the provider did not publish.
	DefaultMinRefetchInterval = 5 * time.Second

	maxDocumentBytes = 1 << 20
)

// HTTPClient is the subset of *http.Client the resolver needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithHTTPClient sets the client used to fetch the key set.
func WithHTTPClient(c HTTPClient) Option {
	return func(r *Resolver) { r.client = c }
}

// WithCapacity bounds the number of cached keys.
func WithCapacity(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithMaxAge sets how long a fetched key stays eligible for reuse.
func WithMaxAge(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithFetchTimeout bounds each key set fetch. The fetch is shared by
// every caller waiting on it, so it does not inherit any caller's
// deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithMinRefetchInterval sets how soon after a successful fetch a miss
// may fetch again. Within the interval an unpublished kid fails with
// [sserr.CodeKeyNotFound] without I/O. Zero disables the limit.
func WithMinRefetchInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d >= 0 {
			r.minRefetch = d
		}
	}
}

// WithClock replaces time.Now when judging key age.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver fetches and caches signing keys from a JWKS endpoint. It is
// safe for concurrent use; concurrent misses share a single fetch.
type Resolver struct {
	url          string
	client       HTTPClient
	capacity     int
	maxAge       time.Duration
	fetchTimeout time.Duration
	minRefetch   time.Duration
	now          func() time.Time
	cache        *expirable.LRU[string, *Key]
	fetches      singleflight.Group
	tracer       trace.Tracer

	mu        sync.Mutex
	lastFetch time.Time
	published map[string]*Key
}

// NewResolver creates a resolver for the key set published at jwksURL.
func NewResolver(jwksURL string, opts ...Option) *Resolver {
	r := &Resolver{
		url:          jwksURL,
		client:       &http.Client{Timeout: DefaultFetchTimeout},
		capacity:     DefaultCapacity,
		maxAge:       DefaultMaxAge,
		fetchTimeout: DefaultFetchTimeout,
		minRefetch:   DefaultMinRefetchInterval,
		now:          time.Now,
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = expirable.NewLRU[string, *Key](r.capacity, nil, r.maxAge)
	return r
}

// URL returns the JWKS endpoint this resolver reads from.
func (r *Resolver) URL() string { return r.url }

// GetSigningKey returns the public key for kid. A cached key younger
// than the maximum age is returned without I/O; otherwise the key set is
// refetched.
//
// Errors carry [sserr.CodeKeyNotFound] when the provider does not
// publish kid, and [sserr.CodeUpstream] when the key set could not be
// fetched or parsed.
func (r *Resolver) GetSigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, err := r.Key(ctx, kid)
	if err != nil {
		return nil, err
	}
	return key.Public, nil
}

// Key is like [Resolver.GetSigningKey] but returns the full cache entry.
func (r *Resolver) Key(ctx context.Context, kid string) (*Key, error) {
	if key, ok := r.cache.Get(kid); ok && r.fresh(key) {
		return key, nil
	}

	ctx, span := r.tracer.Start(ctx, "jwks.GetSigningKey",
		trace.WithAttributes(attribute.String("jwks.kid", kid)))
	defer span.End()

	if key, throttled := r.recent(kid); throttled {
		span.AddEvent("jwks refetch throttled")
		if key != nil {
			return key, nil
		}
		err := sserr.Newf(sserr.CodeKeyNotFound, "jwks: key %q is not published by the identity provider", kid)
		finishSpan(span, err)
		return nil, err
	}

	// The fetch outlives any single caller; each caller stops waiting
	// when its own context ends.
	ch := r.fetches.DoChan(r.url, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		return r.refresh(fetchCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		err := sserr.Wrap(ctx.Err(), sserr.CodeUpstream, "jwks: gave up waiting for key set")
		finishSpan(span, err)
		return nil, err
	}
	v, err := res.Val, res.Err
	span.SetAttributes(attribute.Bool("jwks.fetch_shared", res.Shared))
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	key, ok := v.(map[string]*Key)[kid]
	if !ok {
		err := sserr.Newf(sserr.CodeKeyNotFound, "jwks: key %q is not published by the identity provider", kid)
		finishSpan(span, err)
		return nil, err
	}
	return key, nil
}

func (r *Resolver) fresh(key *Key) bool {
	return r.now().Sub(key.FetchedAt) < r.maxAge
}

// recent reports whether the last successful fetch is too new to repeat.
// When it is, key is kid's entry from that fetch, if it had one.
func (r *Resolver) recent(kid string) (key *Key, throttled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.minRefetch <= 0 || r.lastFetch.IsZero() || r.now().Sub(r.lastFetch) >= r.minRefetch {
		return nil, false
	}
	if k, ok := r.published[kid]; ok && r.fresh(k) {
		return k, true
	}
	return nil, true
}

// refresh fetches the key set and stores every usable key.
func (r *Resolver) refresh(ctx context.Context) (map[string]*Key, error) {
	doc, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	fetchedAt := r.now()
	keys := make(map[string]*Key, len(doc.Keys))
	for _, k := range doc.Keys {
		key, err := k.resolve(fetchedAt)
		if err != nil {
			slog.DebugContext(ctx, "jwks: skipping key", "kid", k.Kid, "kty", k.Kty, "error", err)
			continue
		}
		keys[key.ID] = key
		r.cache.Add(key.ID, key)
	}

	r.mu.Lock()
	r.lastFetch, r.published = fetchedAt, keys
	r.mu.Unlock()
	return keys, nil
}

func (r *Resolver) fetch(ctx context.Context) (*document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "jwks: invalid key set URL")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "jwks: key set request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, sserr.Newf(sserr.CodeUpstream, "jwks: key set endpoint returned status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "jwks: failed to read key set")
	}

	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "jwks: failed to parse key set")
	}
	return &doc, nil
}

// Len returns the number of cached keys.
func (r *Resolver) Len() int { return r.cache.Len() }

func finishSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, fmt.Sprint(err))
}
