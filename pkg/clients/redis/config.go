// Package redis provides a Redis client with OpenTelemetry tracing and
// structured error handling. The services use it as an optional shared
// store for the identity provider admin token, so that every replica
// reuses one token instead of each exchanging its own.
//
// The client wraps go-redis (github.com/redis/go-redis/v9). Create one
// with [NewClient], or inject a fake [Cmdable] with [NewFromClient]:
//
//	client, err := redis.NewClient(ctx, redis.Config{URI: "redis://redis:6379/0"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package redis

import (
	"fmt"
	"net/url"
	"time"
)

// maxStatementLen bounds the db.statement span attribute.
const maxStatementLen = 100

// Defaults applied by [Config.Validate].
const (
	DefaultHost          = "redis"
	DefaultPort          = 6379
	DefaultPoolSize      = 10
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultWriteTimeout  = 3 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Secret holds a password and redacts it when printed or serialized.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Value returns the raw password.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the password out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the Redis connection settings. When URI is set it takes
// precedence over Host, Port, DB and Password.
type Config struct {
	URI          string        `json:"uri,omitempty" yaml:"uri" env:"REDIS_URI"`
	Host         string        `json:"host,omitempty" yaml:"host" env:"REDIS_HOST"`
	Port         int           `json:"port,omitempty" yaml:"port" env:"REDIS_PORT"`
	DB           int           `json:"db" yaml:"db" env:"REDIS_DB"`
	Password     Secret        `json:"-" yaml:"-" env:"REDIS_PASSWORD"`
	PoolSize     int           `json:"pool_size,omitempty" yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT"`
	TLSEnabled   bool          `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`

	// KeyPrefix is prepended to every key written through the client.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix" env:"REDIS_KEY_PREFIX" envDefault:"clinic-hub:"`
}

// Enabled reports whether a Redis endpoint is configured at all.
func (c *Config) Enabled() bool {
	return c.URI != "" || c.Host != ""
}

// Validate applies defaults for zero values and checks the rest.
func (c *Config) Validate() error {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: timeouts must not be negative")
	}

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementLen {
		return s
	}
	return string(runes[:maxStatementLen]) + "..."
}
