// Package errors provides the structured error type shared by the clinic
// services. Every failure that crosses a package boundary is an [*Error]
// carrying a stable [Code]; the code decides both the HTTP status and the
// short wire identifier (e.g. "invalid_token", "upstream_error") written
// into JSON error bodies.
//
// # Error Categories
//
//   - Validation errors: malformed request bodies, missing fields
//   - Authentication errors: missing or invalid bearer tokens
//   - Authorization errors: authenticated caller lacks a required role
//   - NotFound errors: resource does not exist
//   - Conflict errors: operation conflicts with current state (stock)
//   - Upstream errors: the identity provider or a peer service failed
//   - Database errors: the persistence layer failed
//   - Internal errors: unexpected failures and misconfiguration
//   - Timeout errors: an operation exceeded its deadline
//
// Authentication and authorization codes are never produced by business
// operations, and business codes are never produced by the auth gate, so a
// caller can always tell "not allowed" apart from "backend broke".
//
// # Usage
//
//	err := errors.New(errors.CodeValidation, "national_id is required")
//
//	if err := pool.Ping(ctx); err != nil {
//	    return errors.Wrap(err, errors.CodeDatabase, "database unreachable")
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    slog.ErrorContext(ctx, "request failed", "code", e.Code, "error", e.Message)
//	}
package errors
