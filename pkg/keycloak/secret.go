package keycloak

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Secret holds a client secret. It redacts itself when printed, logged
// or serialized; use [Secret.Value] where the raw value is required.
type Secret string

const secretRedacted = "[REDACTED]"

func (s Secret) String() string   { return secretRedacted }
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// LogValue keeps the secret out of slog output.
func (s Secret) LogValue() slog.Value { return slog.StringValue(secretRedacted) }

// ReadSecretFile reads a secret mounted as a file, such as a Kubernetes
// Secret volume, trimming surrounding whitespace. An empty file is an
// error.
func ReadSecretFile(path string) (Secret, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("keycloak: failed to read secret from %s: %w", path, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("keycloak: secret file %s is empty", path)
	}
	return Secret(value), nil
}
