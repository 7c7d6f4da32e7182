// Package pharmacy implements the pharmacy service: medicine inventory,
// stock distribution and staff verification against the identity
// service. Every route is guarded by the same token gate the identity
// service uses, keyed on PHARMACY_CLIENT_ID roles.
package pharmacy

import (
	"net/url"
	"time"

	"github.com/StricklySoft/clinic-hub/pkg/clients/postgres"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/keycloak"
)

// ServiceName identifies this service in logs, spans and the
// X-Caller-Service header sent to identity.
const ServiceName = "pharmacy-service"

// Config is loaded from the environment by pkg/config.
type Config struct {
	KeycloakBaseURL string `env:"KEYCLOAK_BASE_URL" envDefault:"http://keycloak:8080" yaml:"keycloak_base_url"`
	Realm           string `env:"REALM" envDefault:"clinic-mouzaia-hub" yaml:"realm"`
	ClientID        string `env:"PHARMACY_CLIENT_ID" envDefault:"pharmacy-service" yaml:"client_id"`
	TrustGateway    bool   `env:"TRUST_GATEWAY" envDefault:"true" yaml:"trust_gateway"`
	Port            int    `env:"PHARMACY_SERVICE_PORT" envDefault:"4100" yaml:"port"`
	IdentityBaseURL string `env:"IDENTITY_BASE_URL" envDefault:"http://identity-service:4000" yaml:"identity_base_url"`

	KeycloakTimeout time.Duration `env:"KEYCLOAK_TIMEOUT" envDefault:"10s" yaml:"keycloak_timeout"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"5s" yaml:"identity_timeout"`
	JWKSCacheSize   int           `env:"JWKS_CACHE_SIZE" envDefault:"5" yaml:"jwks_cache_size"`
	JWKSCacheMaxAge time.Duration `env:"JWKS_CACHE_MAX_AGE" envDefault:"10m" yaml:"jwks_cache_max_age"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" yaml:"allowed_origins"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`

	// Database selects the Postgres store. Left empty, the service keeps
	// its inventory in memory.
	Database postgres.Config `yaml:"database"`
}

// Validate checks URLs and ranges, and the database settings when a
// database is configured.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"KEYCLOAK_BASE_URL": c.KeycloakBaseURL,
		"IDENTITY_BASE_URL": c.IdentityBaseURL,
	} {
		if !httpURL(raw) {
			return sserr.Newf(sserr.CodeValidationFormat, "pharmacy: %s %q is not an http(s) URL", name, raw)
		}
	}
	if c.Realm == "" || c.ClientID == "" {
		return sserr.New(sserr.CodeValidationRequired, "pharmacy: REALM and PHARMACY_CLIENT_ID must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidation, "pharmacy: PHARMACY_SERVICE_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.KeycloakTimeout <= 0 || c.IdentityTimeout <= 0 {
		return sserr.New(sserr.CodeValidation, "pharmacy: KEYCLOAK_TIMEOUT and IDENTITY_TIMEOUT must be positive")
	}
	if c.JWKSCacheSize < 1 || c.JWKSCacheMaxAge <= 0 {
		return sserr.New(sserr.CodeValidation, "pharmacy: JWKS cache size and max age must be positive")
	}
	if c.Database.Enabled() {
		if err := c.Database.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "pharmacy: invalid database configuration")
		}
	}
	return nil
}

// Endpoints returns the Keycloak endpoints for the configured realm.
func (c *Config) Endpoints() keycloak.Endpoints {
	return keycloak.Endpoints{BaseURL: c.KeycloakBaseURL, Realm: c.Realm}
}

func httpURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
