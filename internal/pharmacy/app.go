package pharmacy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/clinic-hub/internal/serve"
	"github.com/StricklySoft/clinic-hub/pkg/auth"
	"github.com/StricklySoft/clinic-hub/pkg/clients/postgres"
	"github.com/StricklySoft/clinic-hub/pkg/jwks"
	"github.com/StricklySoft/clinic-hub/pkg/keycloak"
	"github.com/StricklySoft/clinic-hub/pkg/lifecycle"
)

// App is a fully wired pharmacy service.
type App struct {
	Service *lifecycle.Service
	Handler http.Handler
	Store   Store
}

// Option adjusts how [New] wires the service.
type Option func(*options)

type options struct {
	httpClient        keycloak.HTTPClient
	identityTransport http.RoundTripper
	store             Store
	logger            *slog.Logger
}

// WithHTTPClient replaces the client used to fetch signing keys.
func WithHTTPClient(c keycloak.HTTPClient) Option {
	return func(o *options) { o.httpClient = c }
}

// WithIdentityTransport sets the transport under the forwarding round
// tripper used for identity calls.
func WithIdentityTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.identityTransport = rt }
}

// WithStore overrides the store selected from cfg.Database.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the lifecycle logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds the pharmacy service from a validated cfg. With a database
// configured it connects immediately and migrates the schema on start.
func New(ctx context.Context, cfg Config, version string, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.KeycloakTimeout}
	}

	endpoints := cfg.Endpoints()
	mode := auth.ModeFromTrustGateway(cfg.TrustGateway)

	var keys auth.KeyResolver
	if mode == auth.ModeLocal {
		keys = jwks.NewResolver(endpoints.Certs(),
			jwks.WithHTTPClient(o.httpClient),
			jwks.WithCapacity(cfg.JWKSCacheSize),
			jwks.WithMaxAge(cfg.JWKSCacheMaxAge),
			jwks.WithFetchTimeout(cfg.KeycloakTimeout),
		)
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{Mode: mode, Issuer: endpoints.Issuer()}, keys)
	if err != nil {
		return nil, err
	}

	builder := lifecycle.NewServiceBuilder(ServiceName, version).WithLogger(o.logger)

	store := o.store
	backend := "custom"
	switch {
	case store != nil:
	case cfg.Database.Enabled():
		db, err := postgres.NewClient(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		pg := NewPostgresStore(db)
		store, backend = pg, "postgres"
		builder = builder.
			WithOnStart(pg.Migrate).
			WithDependency("postgres", db.Health).
			WithOnStop(func(context.Context) error {
				db.Close()
				return nil
			})
	default:
		store, backend = NewMemoryStore(SeedMedicines()...), "memory"
	}

	identity := NewIdentityClient(cfg.IdentityBaseURL, cfg.IdentityTimeout, o.identityTransport)

	builder = builder.WithOnStart(func(ctx context.Context) error {
		slog.InfoContext(ctx, "pharmacy: service configured",
			"mode", mode.String(),
			"issuer", endpoints.Issuer(),
			"client_id", cfg.ClientID,
			"identity_base_url", cfg.IdentityBaseURL,
			"store", backend,
		)
		return nil
	})

	svc, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &App{
		Service: svc,
		Handler: NewServer(cfg, verifier, store, identity, svc).Routes(),
		Store:   store,
	}, nil
}

// Run serves the app on cfg.Port until ctx is canceled.
func (a *App) Run(ctx context.Context, cfg Config) error {
	return serve.Run(ctx, a.Service, serve.NewServer(cfg.Port, a.Handler))
}
