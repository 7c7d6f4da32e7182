package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/StricklySoft/clinic-hub/pkg/claims"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/respond"
)

// Authenticator turns a raw bearer token into claims. A nil result with
// a nil error means the token is invalid; an error means the decision
// could not be made. [Verifier] satisfies this interface.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*claims.Claims, error)
}

// Gate admits requests to protected operations. It authenticates the
// bearer token and checks the caller's roles against a [Policy] before
// any business logic runs.
type Gate struct {
	authn       Authenticator
	policy      Policy
	serviceName string
}

// NewGate creates a Gate enforcing policy. serviceName is used in logs.
func NewGate(authn Authenticator, policy Policy, serviceName string) *Gate {
	if policy == nil {
		policy = Policy{}
	}
	return &Gate{authn: authn, policy: policy, serviceName: serviceName}
}

// Policy returns the policy the gate enforces.
func (g *Gate) Policy() Policy { return g.policy }

// Check runs the gate for operation against the Authorization header
// value. It returns the caller's claims and token, or one of:
//   - [sserr.CodeMissingToken] when no bearer credential is present
//   - [sserr.CodeInvalidToken] when the token is rejected
//   - [sserr.CodeForbidden] with a "reason" detail when the role is missing
//   - an [sserr.CodeUpstream] family error when keys could not be fetched
//   - [sserr.CodeInternalConfiguration] when operation is not in the policy
func (g *Gate) Check(ctx context.Context, operation, authHeader string) (*claims.Claims, string, *sserr.Error) {
	req, ok := g.policy.Lookup(operation)
	if !ok {
		slog.ErrorContext(ctx, "auth: operation has no policy entry",
			"operation", operation,
			"service", g.serviceName,
		)
		return nil, "", sserr.Newf(sserr.CodeInternalConfiguration, "no authorization policy for operation %q", operation)
	}

	token := ExtractBearerToken(authHeader)
	if token == "" {
		return nil, "", sserr.MissingToken()
	}

	c, err := g.authn.Authenticate(ctx, token)
	if err != nil {
		slog.WarnContext(ctx, "auth: could not authenticate request",
			"operation", operation,
			"service", g.serviceName,
			"error", err,
		)
		return nil, "", sserr.Wrap(err, sserr.CodeUpstream, "identity provider unavailable")
	}
	if c == nil {
		return nil, "", sserr.InvalidToken()
	}

	if !req.Satisfied(c) {
		slog.InfoContext(ctx, "auth: access denied",
			"operation", operation,
			"service", g.serviceName,
			"subject", c.Subject,
			"requirement", req.String(),
		)
		return nil, "", sserr.Forbidden(req.Reason())
	}
	return c, token, nil
}

// Require returns HTTP middleware guarding operation. Rejected requests
// get a JSON error body; admitted requests see the claims and raw token
// through [ClaimsFromContext] and [TokenFromContext].
//
// Example:
//
//	gate := auth.NewGate(verifier, identity.Policy(cfg.ClientID), "identity-service")
//	r.With(gate.Require("users.list")).Get("/users", h.listUsers)
func (g *Gate) Require(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			c, token, err := g.Check(ctx, operation, r.Header.Get(HeaderAuthorization))
			if err != nil {
				respond.Error(w, r, err)
				return
			}

			ctx = ContextWithClaims(ctx, c)
			ctx = ContextWithToken(ctx, token)
			ctx = contextWithOperation(ctx, operation)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
