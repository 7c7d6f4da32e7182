package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/clinic-hub/pkg/claims"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey int

const (
	claimsKey contextKey = iota
	tokenKey
	operationKey
)

// ContextWithClaims returns a context carrying the caller's verified
// claims. The [Gate] calls this before invoking a protected handler.
func ContextWithClaims(ctx context.Context, c *claims.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext returns the caller's claims, if any.
//
// Example:
//
//	c, ok := auth.ClaimsFromContext(r.Context())
//	if !ok {
//	    return sserr.MissingToken()
//	}
//	slog.InfoContext(ctx, "listing users", "caller", c.PreferredUsername)
func ClaimsFromContext(ctx context.Context) (*claims.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*claims.Claims)
	return c, ok && c != nil
}

// MustClaimsFromContext is like [ClaimsFromContext] but panics when no
// claims are present. Use it only behind a [Gate].
func MustClaimsFromContext(ctx context.Context) *claims.Claims {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		panic("auth: no claims in context; ensure the handler is behind a Gate")
	}
	return c
}

// ContextWithToken returns a context carrying the caller's raw bearer
// token so that it can be forwarded to downstream services.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the caller's raw bearer token, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

func contextWithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey, operation)
}

// OperationFromContext returns the name of the protected operation the
// request was admitted to.
func OperationFromContext(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(operationKey).(string)
	return op, ok
}

// TraceIDFromContext extracts the OpenTelemetry trace ID from the context.
// Returns the trace ID as a hex string and true if a valid trace is active.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
