// Package auth turns bearer tokens into trusted [claims.Claims] and gates
// protected operations on the roles those claims carry.
//
// A [Verifier] runs in one of two modes. In [ModeGatewayTrusted] an
// upstream gateway has already verified the token signature and the
// verifier only decodes the payload. In [ModeLocal] the verifier checks
// the RS256 signature against the identity provider's published keys and
// enforces issuer and time claims.
//
// The [Gate] combines a verifier with a [Policy] to protect HTTP handlers
// and gRPC methods. The identity and pharmacy services serve HTTP only;
// the gRPC interceptors are library surface for services that expose
// gRPC and are covered by this package's tests.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/clinic-hub/pkg/claims"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

const tracerName = "github.com/StricklySoft/clinic-hub/pkg/auth"

// maxTokenSize is the largest bearer token local mode will parse. Gateway
// mode has no cap; the gateway has already accepted the token.
const maxTokenSize = 8192

// Mode selects how a [Verifier] establishes trust in a token.
type Mode int

const (
	// ModeGatewayTrusted decodes the payload without checking the
	// signature. Use it only behind a gateway that verifies tokens.
	ModeGatewayTrusted Mode = iota

	// ModeLocal verifies the RS256 signature, issuer, expiry and
	// not-before claims.
	ModeLocal
)

// ModeFromTrustGateway maps the TRUST_GATEWAY setting onto a Mode.
func ModeFromTrustGateway(trust bool) Mode {
	if trust {
		return ModeGatewayTrusted
	}
	return ModeLocal
}

// String returns a stable name for logs.
func (m Mode) String() string {
	switch m {
	case ModeGatewayTrusted:
		return "gateway_trusted"
	case ModeLocal:
		return "local"
	default:
		return "unknown"
	}
}

// KeyResolver looks up the RSA public key for a key id. [jwks.Resolver]
// satisfies this interface.
//
// Implementations return an error with code [sserr.CodeKeyNotFound] when
// the key set does not contain kid, and [sserr.CodeUpstream] when the key
// set cannot be fetched.
type KeyResolver interface {
	GetSigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// VerifierConfig configures a [Verifier].
type VerifierConfig struct {
	// Mode selects gateway-trusted decoding or local verification.
	Mode Mode

	// Issuer is the exact "iss" value required in local mode, normally
	// "{base}/realms/{realm}".
	Issuer string

	// Leeway is the clock skew tolerated for exp and nbf. Zero means
	// no tolerance.
	Leeway time.Duration
}

// Validate reports configuration errors as [sserr.CodeValidation].
func (c VerifierConfig) Validate() error {
	switch c.Mode {
	case ModeGatewayTrusted:
	case ModeLocal:
		if c.Issuer == "" {
			return sserr.Validation("auth: issuer is required in local verification mode")
		}
	default:
		return sserr.Validationf("auth: unknown verification mode %d", c.Mode)
	}
	if c.Leeway < 0 {
		return sserr.Validation("auth: leeway must be non-negative")
	}
	return nil
}

// failure names why a token was rejected. It is logged and recorded on
// the span but never returned to callers.
type failure string

const (
	failureOversized      failure = "oversized"
	failureMalformed      failure = "malformed"
	failureMissingKeyID   failure = "missing_kid"
	failureUnsupportedAlg failure = "unsupported_alg"
	failureKeyNotFound    failure = "key_not_found"
	failureSignature      failure = "bad_signature"
	failureExpired        failure = "expired"
	failureNotYetValid    failure = "not_yet_valid"
	failureIssuer         failure = "issuer_mismatch"
	failureClaims         failure = "invalid_claims"
)

// Verifier validates bearer tokens and returns their claims. A Verifier is
// safe for concurrent use.
type Verifier struct {
	mode   Mode
	issuer string
	keys   KeyResolver
	parser *jwt.Parser
	tracer trace.Tracer
}

// NewVerifier creates a Verifier. keys may be nil in
// [ModeGatewayTrusted] and is required in [ModeLocal].
func NewVerifier(cfg VerifierConfig, keys KeyResolver) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeLocal && keys == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: key resolver is required in local verification mode")
	}

	return &Verifier{
		mode:   cfg.Mode,
		issuer: cfg.Issuer,
		keys:   keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithLeeway(cfg.Leeway),
		),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Mode reports the verification mode.
func (v *Verifier) Mode() Mode { return v.mode }

// Verify returns the token's claims, or nil if the token is not
// acceptable for any reason, including failure to fetch signing keys.
func (v *Verifier) Verify(ctx context.Context, token string) *claims.Claims {
	c, _ := v.Authenticate(ctx, token)
	return c
}

// Authenticate is like [Verifier.Verify] but separates infrastructure
// failures from bad tokens. A rejected token yields (nil, nil). An error
// is returned only when the signing key set could not be obtained, in
// which case it carries an [sserr.CodeUpstream] family code.
func (v *Verifier) Authenticate(ctx context.Context, token string) (_ *claims.Claims, retErr error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.Authenticate")
	defer span.End()
	defer func() { finishSpan(span, retErr) }()
	span.SetAttributes(attribute.String("auth.mode", v.mode.String()))

	if v.mode == ModeGatewayTrusted {
		c := claims.Decode(token)
		if c == nil {
			v.reject(ctx, span, failureMalformed, nil)
			return nil, nil
		}
		span.SetAttributes(attribute.String("auth.subject", c.Subject))
		return c, nil
	}

	return v.verifyLocal(ctx, span, token)
}

func (v *Verifier) verifyLocal(ctx context.Context, span trace.Span, token string) (*claims.Claims, error) {
	if len(token) > maxTokenSize {
		v.reject(ctx, span, failureOversized, nil)
		return nil, nil
	}

	header, err := claims.DecodeHeader(token)
	if err != nil {
		v.reject(ctx, span, failureMalformed, err)
		return nil, nil
	}
	if header.KeyID == "" {
		v.reject(ctx, span, failureMissingKeyID, nil)
		return nil, nil
	}
	if header.Algorithm != jwt.SigningMethodRS256.Alg() {
		v.reject(ctx, span, failureUnsupportedAlg, nil)
		return nil, nil
	}
	span.SetAttributes(attribute.String("auth.kid", header.KeyID))

	key, err := v.keys.GetSigningKey(ctx, header.KeyID)
	if err != nil {
		if sserr.HasCode(err, sserr.CodeKeyNotFound) {
			v.reject(ctx, span, failureKeyNotFound, err)
			return nil, nil
		}
		slog.WarnContext(ctx, "auth: signing key lookup failed",
			"kid", header.KeyID,
			"error", err,
		)
		if sserr.IsUpstream(err) {
			return nil, err
		}
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "auth: signing key lookup failed")
	}

	c := &claims.Claims{}
	_, err = v.parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		v.reject(ctx, span, classify(err), err)
		return nil, nil
	}

	span.SetAttributes(attribute.String("auth.subject", c.Subject))
	return c, nil
}

func (v *Verifier) reject(ctx context.Context, span trace.Span, reason failure, err error) {
	span.SetAttributes(attribute.String("auth.failure", string(reason)))
	attrs := []any{"reason", string(reason), "mode", v.mode.String()}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	slog.DebugContext(ctx, "auth: token rejected", attrs...)
}

// classify maps a jwt parse error onto a failure reason.
func classify(err error) failure {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return failureExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return failureNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return failureIssuer
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return failureSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return failureMalformed
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing), errors.Is(err, jwt.ErrTokenInvalidClaims):
		return failureClaims
	}
	if strings.Contains(err.Error(), "signature") {
		return failureSignature
	}
	return failureClaims
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span and marks it failed.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
