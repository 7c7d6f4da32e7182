package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Header names used on inbound requests and when forwarding a caller's
// credentials to another service. gRPC metadata uses the same names.
const (
	// HeaderAuthorization carries the bearer token.
	HeaderAuthorization = "authorization"

	// HeaderCallerService names the service that forwarded the request.
	HeaderCallerService = "x-caller-service"
)

const bearerScheme = "Bearer"

// ExtractBearerToken returns the credential from an Authorization header
// value of the form "Bearer <token>". The scheme is matched
// case-insensitively. It returns "" when the header is empty, uses
// another scheme, or carries an empty or space-separated credential.
func ExtractBearerToken(authHeader string) string {
	scheme, credential, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return ""
	}
	credential = strings.TrimSpace(credential)
	if credential == "" || strings.ContainsAny(credential, " \t") {
		return ""
	}
	return credential
}

// BearerValue formats token as an Authorization header value.
func BearerValue(token string) string {
	return bearerScheme + " " + token
}

// ForwardingRoundTripper wraps an [http.RoundTripper] so that outgoing
// requests carry the caller's bearer token and the forwarding service's
// name. The token is taken from the request context, where the [Gate]
// stored it. Requests whose context carries no token are sent unchanged
// apart from the caller-service header, and a request that already sets
// Authorization keeps it.
//
// Example:
//
//	client := &http.Client{
//	    Transport: auth.NewForwardingRoundTripper("pharmacy-service", nil),
//	}
//	req, _ := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
//	resp, err := client.Do(req)
type ForwardingRoundTripper struct {
	serviceName string
	wrapped     http.RoundTripper
}

// NewForwardingRoundTripper creates a ForwardingRoundTripper. If transport
// is nil, [http.DefaultTransport] is used.
func NewForwardingRoundTripper(serviceName string, transport http.RoundTripper) *ForwardingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &ForwardingRoundTripper{serviceName: serviceName, wrapped: transport}
}

// RoundTrip implements [http.RoundTripper].
func (t *ForwardingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating the caller's copy.
	clone := r.Clone(r.Context())
	if t.serviceName != "" {
		clone.Header.Set(HeaderCallerService, t.serviceName)
	}
	if clone.Header.Get(HeaderAuthorization) == "" {
		if token, ok := TokenFromContext(r.Context()); ok {
			clone.Header.Set(HeaderAuthorization, BearerValue(token))
		} else {
			slog.DebugContext(r.Context(), "auth: no caller token to forward",
				"service", t.serviceName,
				"host", r.URL.Host,
			)
		}
	}
	return t.wrapped.RoundTrip(clone)
}
