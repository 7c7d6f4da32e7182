package pharmacy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/clinic-hub/internal/testutil"
	"github.com/StricklySoft/clinic-hub/internal/testutil/fixtures"
	"github.com/StricklySoft/clinic-hub/pkg/config"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

func load(t *testing.T, vars map[string]string) (Config, error) {
	t.Helper()
	var cfg Config
	err := config.New().WithLookup(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}).Load(&cfg)
	return cfg, err
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, fixtures.KeycloakBaseURL, cfg.KeycloakBaseURL)
	assert.Equal(t, fixtures.Realm, cfg.Realm)
	assert.Equal(t, fixtures.PharmacyClientID, cfg.ClientID)
	assert.True(t, cfg.TrustGateway)
	assert.Equal(t, 4100, cfg.Port)
	assert.Equal(t, "http://identity-service:4000", cfg.IdentityBaseURL)
	assert.Equal(t, 10*time.Second, cfg.KeycloakTimeout)
	assert.Equal(t, 5*time.Second, cfg.IdentityTimeout)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, fixtures.Issuer, cfg.Endpoints().Issuer())
}

func TestConfig_Database(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{
		"DATABASE_URL": "postgres://pharmacy:secret@db:5432/pharmacy?sslmode=disable",
	})
	require.NoError(t, err)
	assert.True(t, cfg.Database.Enabled())
	testutil.AssertJSONNotContains(t, cfg, "secret")
}

// Reads the real process environment, so it cannot run in parallel.
func TestConfig_ProcessEnvironment(t *testing.T) {
	testutil.SetEnv(t, "PHARMACY_SERVICE_PORT", "4242")
	testutil.SetEnv(t, "TRUST_GATEWAY", "false")

	cfg := config.MustLoad[Config](config.New())
	assert.Equal(t, 4242, cfg.Port)
	assert.False(t, cfg.TrustGateway)
}

func TestConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vars map[string]string
		code sserr.Code
	}{
		{"bad identity url", map[string]string{"IDENTITY_BASE_URL": "identity-service:4000"}, sserr.CodeValidationFormat},
		{"bad keycloak url", map[string]string{"KEYCLOAK_BASE_URL": "ftp://keycloak"}, sserr.CodeValidationFormat},
		{"empty client", map[string]string{"PHARMACY_CLIENT_ID": ""}, sserr.CodeValidationRequired},
		{"bad port", map[string]string{"PHARMACY_SERVICE_PORT": "0"}, sserr.CodeValidation},
		{"zero identity timeout", map[string]string{"IDENTITY_TIMEOUT": "0s"}, sserr.CodeValidation},
		{"bad database", map[string]string{"DATABASE_URL": "mysql://db/pharmacy"}, sserr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tt.vars)
			testutil.RequireErrorCode(t, err, tt.code)
		})
	}
}

func TestConfig_TrustGateway(t *testing.T) {
	t.Parallel()

	for value, want := range map[string]bool{"true": true, "1": true, "false": false, "0": false, "F": false} {
		cfg, err := load(t, map[string]string{"TRUST_GATEWAY": value})
		require.NoError(t, err, value)
		assert.Equal(t, want, cfg.TrustGateway, value)
	}

	// Anything unparseable stops startup instead of picking a mode.
	for _, value := range []string{"yes", "off", "enabled"} {
		_, err := load(t, map[string]string{"TRUST_GATEWAY": value})
		testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
	}
}

func TestPolicy(t *testing.T) {
	t.Parallel()
	p := Policy(fixtures.PharmacyClientID)

	tests := map[string]string{
		OpMedicinesList:       "client:pharmacy-service:read_medicines",
		OpMedicinesGet:        "client:pharmacy-service:read_medicines",
		OpMedicinesCreate:     "client:pharmacy-service:manage_medicines",
		OpMedicinesUpdate:     "client:pharmacy-service:manage_medicines",
		OpMedicinesDelete:     "client:pharmacy-service:manage_medicines",
		OpDistributionsList:   "client:pharmacy-service:read_medicines",
		OpDistributionsCreate: "client:pharmacy-service:distribute_medicines",
		OpStaffVerify:         "authenticated",
	}
	assert.Len(t, p.Operations(), len(tests))
	for op, want := range tests {
		req, ok := p.Lookup(op)
		require.True(t, ok, op)
		assert.Equal(t, want, req.String(), op)
	}
}
