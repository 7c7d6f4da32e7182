// Package identity implements the identity service: bearer-token
// verification for the clinic and a sanitized view of the Keycloak user
// directory.
package identity

import (
	"net/url"
	"time"

	"github.com/StricklySoft/clinic-hub/pkg/clients/redis"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/keycloak"
)

// ServiceName identifies this service in logs, spans and the
// X-Caller-Service header.
const ServiceName = "identity-service"

// Config is loaded from the environment by pkg/config.
type Config struct {
	KeycloakBaseURL  string          `env:"KEYCLOAK_BASE_URL" envDefault:"http://keycloak:8080" yaml:"keycloak_base_url"`
	Realm            string          `env:"REALM" envDefault:"clinic-mouzaia-hub" yaml:"realm"`
	ClientID         string          `env:"SERVICE_CLIENT_ID" envDefault:"identity-service" yaml:"client_id"`
	ClientSecret     keycloak.Secret `env:"SERVICE_CLIENT_SECRET" yaml:"-"`
	ClientSecretFile string          `env:"SERVICE_CLIENT_SECRET_FILE" yaml:"client_secret_file"`

	// TrustGateway selects decode-only verification behind the API
	// gateway. When false tokens are verified locally against JWKS.
	TrustGateway bool `env:"TRUST_GATEWAY" envDefault:"true" yaml:"trust_gateway"`

	Port             int           `env:"IDENTITY_SERVICE_PORT" envDefault:"4000" yaml:"port"`
	KeycloakTimeout  time.Duration `env:"KEYCLOAK_TIMEOUT" envDefault:"10s" yaml:"keycloak_timeout"`
	JWKSCacheSize    int           `env:"JWKS_CACHE_SIZE" envDefault:"5" yaml:"jwks_cache_size"`
	JWKSCacheMaxAge  time.Duration `env:"JWKS_CACHE_MAX_AGE" envDefault:"10m" yaml:"jwks_cache_max_age"`
	AdminTokenMargin time.Duration `env:"ADMIN_TOKEN_MARGIN" envDefault:"60s" yaml:"admin_token_margin"`
	AllowedOrigins   []string      `env:"CORS_ALLOWED_ORIGINS" yaml:"allowed_origins"`
	DebugEndpoints   bool          `env:"DEBUG_ENDPOINTS" yaml:"debug_endpoints"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`

	// Redis, when configured, shares the admin token between replicas.
	Redis redis.Config `yaml:"redis"`
}

// Validate resolves the client secret from SERVICE_CLIENT_SECRET_FILE
// when it is not set directly, and checks ranges.
func (c *Config) Validate() error {
	u, err := url.Parse(c.KeycloakBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return sserr.Newf(sserr.CodeValidationFormat, "identity: KEYCLOAK_BASE_URL %q is not an http(s) URL", c.KeycloakBaseURL)
	}
	if c.Realm == "" || c.ClientID == "" {
		return sserr.New(sserr.CodeValidationRequired, "identity: REALM and SERVICE_CLIENT_ID must not be empty")
	}

	if c.ClientSecret == "" && c.ClientSecretFile != "" {
		secret, err := keycloak.ReadSecretFile(c.ClientSecretFile)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeInternalConfiguration, "identity: failed to read SERVICE_CLIENT_SECRET_FILE")
		}
		c.ClientSecret = secret
	}
	if c.ClientSecret == "" {
		return sserr.New(sserr.CodeValidationRequired, "identity: SERVICE_CLIENT_SECRET or SERVICE_CLIENT_SECRET_FILE must be set")
	}

	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidation, "identity: IDENTITY_SERVICE_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.KeycloakTimeout <= 0 {
		return sserr.New(sserr.CodeValidation, "identity: KEYCLOAK_TIMEOUT must be positive")
	}
	if c.JWKSCacheSize < 1 || c.JWKSCacheMaxAge <= 0 {
		return sserr.New(sserr.CodeValidation, "identity: JWKS cache size and max age must be positive")
	}
	if c.AdminTokenMargin < 0 {
		return sserr.New(sserr.CodeValidation, "identity: ADMIN_TOKEN_MARGIN must not be negative")
	}
	if c.Redis.Enabled() {
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "identity: invalid redis configuration")
		}
	}
	return nil
}

// Endpoints returns the Keycloak endpoints for the configured realm.
func (c *Config) Endpoints() keycloak.Endpoints {
	return keycloak.Endpoints{BaseURL: c.KeycloakBaseURL, Realm: c.Realm}
}
