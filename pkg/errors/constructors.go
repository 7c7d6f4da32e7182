package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
//
// Example:
//
//	err := errors.Newf(errors.CodeNotFoundMedicine, "medicine %q not found", id)
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. If err is nil, Wrap returns nil.
//
// Example:
//
//	if err := tx.Commit(ctx); err != nil {
//	    return errors.Wrap(err, errors.CodeDatabase, "failed to commit distribution")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a formatted message. If err is nil, Wrapf returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation creates a new validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a new validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// MissingToken creates the error returned when no bearer credential is
// present on a protected request.
func MissingToken() *Error {
	return New(CodeMissingToken, "missing bearer token")
}

// InvalidToken creates the error returned when a bearer token fails
// decoding or verification.
func InvalidToken() *Error {
	return New(CodeInvalidToken, "invalid bearer token")
}

// Forbidden creates a new authorization error. The reason is rendered
// as the "reason" field of the response body.
//
// Example:
//
//	err := errors.Forbidden("missing_client_role:read_users")
func Forbidden(reason string) *Error {
	return New(CodeForbidden, "caller lacks the required role").WithDetail("reason", reason)
}

// NotFound creates a new not found error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// NotFoundf creates a new not found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// Conflict creates a new conflict error.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// Upstream creates an error for a failed call to the identity provider or
// a peer service.
func Upstream(message string) *Error {
	return New(CodeUpstream, message)
}

// Internal creates a new internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates a new internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// Timeout creates a new timeout error.
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// FromError converts err to an *Error. Errors already in the chain are
// returned as-is; anything else is wrapped as an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
