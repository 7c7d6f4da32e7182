package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/clinic-hub/internal/serve"
	"github.com/StricklySoft/clinic-hub/pkg/auth"
	"github.com/StricklySoft/clinic-hub/pkg/clients/redis"
	"github.com/StricklySoft/clinic-hub/pkg/jwks"
	"github.com/StricklySoft/clinic-hub/pkg/keycloak"
	"github.com/StricklySoft/clinic-hub/pkg/lifecycle"
)

// App is a fully wired identity service.
type App struct {
	Service  *lifecycle.Service
	Handler  http.Handler
	Verifier *auth.Verifier
	Admin    *keycloak.AdminTokenCache
}

// Option adjusts how [New] wires the service.
type Option func(*options)

type options struct {
	httpClient keycloak.HTTPClient
	logger     *slog.Logger
}

// WithHTTPClient replaces the client used for every Keycloak call.
func WithHTTPClient(c keycloak.HTTPClient) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the lifecycle logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds the identity service from a validated cfg. When Redis is
// configured it connects immediately so that a bad address fails fast.
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

	adminOpts := []keycloak.AdminOption{keycloak.WithAdminHTTPClient(o.httpClient)}
	if cfg.Redis.Enabled() {
		rc, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		adminOpts = append(adminOpts, keycloak.WithTokenStore(keycloak.NewRedisTokenStore(rc, cfg.Realm, cfg.ClientID)))
		builder = builder.
			WithDependency("redis", rc.Health).
			WithOnStop(func(context.Context) error { return rc.Close() })
	}

	admin := keycloak.NewAdminTokenCache(keycloak.AdminConfig{
		Endpoints:    endpoints,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Margin:       cfg.AdminTokenMargin,
	}, adminOpts...)
	users := keycloak.NewUsersClient(endpoints, admin, o.httpClient)

	builder = builder.WithOnStart(func(ctx context.Context) error {
		slog.InfoContext(ctx, "identity: token verification configured",
			"mode", mode.String(),
			"issuer", endpoints.Issuer(),
			"client_id", cfg.ClientID,
			"shared_admin_token", cfg.Redis.Enabled(),
			"debug_endpoints", cfg.DebugEndpoints,
		)
		return nil
	})

	svc, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &App{
		Service:  svc,
		Handler:  NewServer(cfg, verifier, users, svc).Routes(),
		Verifier: verifier,
		Admin:    admin,
	}, nil
}

// Run serves the app on cfg.Port until ctx is canceled.
func (a *App) Run(ctx context.Context, cfg Config) error {
	return serve.Run(ctx, a.Service, serve.NewServer(cfg.Port, a.Handler))
}
