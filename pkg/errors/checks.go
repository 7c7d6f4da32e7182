package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
//
// Example:
//
//	if e, ok := errors.AsError(err); ok {
//	    slog.Warn("request failed", "code", e.Code)
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports whether err is a validation error (VAL_xxx).
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports whether err is an authentication error (AUTH_xxx).
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsAuthorization reports whether err is an authorization error (AUTHZ_xxx).
func IsAuthorization(err error) bool { return hasCategory(err, "AUTHZ") }

// IsNotFound reports whether err is a not found error (NF_xxx).
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsConflict reports whether err is a conflict error (CONF_xxx).
func IsConflict(err error) bool { return hasCategory(err, "CONF") }

// IsUpstream reports whether err is an upstream error (UPSTREAM_xxx).
func IsUpstream(err error) bool { return hasCategory(err, "UPSTREAM") }

// IsDatabase reports whether err is a database error (DB_xxx).
func IsDatabase(err error) bool { return hasCategory(err, "DB") }

// IsInternal reports whether err is an internal error (INT_xxx).
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsTimeout reports whether err is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsUnavailable reports whether err carries an UNAVAIL_ code.
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsAuthFailure reports whether err belongs to the authentication or
// authorization code space. Business operations never return such errors.
func IsAuthFailure(err error) bool {
	return IsAuthentication(err) || IsAuthorization(err)
}

// IsRetryable reports whether the operation may succeed on retry.
// Upstream, unavailable, database-timeout and timeout errors are
// considered retryable.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	if e.Code == CodeDatabaseTimeout {
		return true
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UPSTREAM", "UNAVAIL":
		return e.Code != CodeKeyNotFound
	default:
		return false
	}
}
