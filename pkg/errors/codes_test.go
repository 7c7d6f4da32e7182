package errors

import (
	"testing"
)

func TestCode_Category(t *testing.T) {
	tests := []struct {
		name string
		code Code
		want string
	}{
		{name: "validation", code: CodeValidation, want: "VAL"},
		{name: "missing token", code: CodeMissingToken, want: "AUTH"},
		{name: "forbidden", code: CodeForbidden, want: "AUTHZ"},
		{name: "medicine not found", code: CodeNotFoundMedicine, want: "NF"},
		{name: "insufficient stock", code: CodeInsufficientStock, want: "CONF"},
		{name: "key not found", code: CodeKeyNotFound, want: "UPSTREAM"},
		{name: "database", code: CodeDatabase, want: "DB"},
		{name: "configuration", code: CodeInternalConfiguration, want: "INT"},
		{name: "timeout", code: CodeTimeout, want: "TIMEOUT"},
		{name: "no separator", code: Code("CUSTOM"), want: "CUSTOM"},
		{name: "empty", code: Code(""), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Category(); got != tt.want {
				t.Errorf("Code.Category() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode_Wire(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{code: CodeMissingToken, want: "missing_token"},
		{code: CodeInvalidToken, want: "invalid_token"},
		{code: CodeForbidden, want: "forbidden"},
		{code: CodeValidationRequired, want: "validation_error"},
		{code: CodeNotFoundMedicine, want: "not_found"},
		{code: CodeInsufficientStock, want: "conflict"},
		{code: CodeUpstream, want: "upstream_error"},
		{code: CodeKeyNotFound, want: "upstream_error"},
		{code: CodeUpstreamAuthFailure, want: "upstream_error"},
		{code: CodeDatabase, want: "database_error"},
		{code: CodeDatabaseTimeout, want: "database_error"},
		{code: CodeInternal, want: "server_error"},
		{code: CodeTimeout, want: "timeout"},
		{code: CodeUnavailable, want: "unavailable"},
		{code: Code("WHATEVER_001"), want: "server_error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Wire(); got != tt.want {
				t.Errorf("Code.Wire() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode_AuthAndBusinessSpacesAreDisjoint(t *testing.T) {
	auth := map[string]bool{}
	for _, c := range []Code{CodeMissingToken, CodeInvalidToken, CodeForbidden} {
		auth[c.Wire()] = true
	}
	business := []Code{
		CodeValidation, CodeNotFound, CodeConflict, CodeInsufficientStock,
		CodeUpstream, CodeKeyNotFound, CodeUpstreamAuthFailure,
		CodeDatabase, CodeDatabaseTimeout, CodeInternal, CodeTimeout, CodeUnavailable,
	}
	for _, c := range business {
		if auth[c.Wire()] {
			t.Errorf("business code %s shares wire identifier %q with an auth code", c, c.Wire())
		}
	}
}
