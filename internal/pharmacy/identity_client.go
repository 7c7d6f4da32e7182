package pharmacy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/clinic-hub/pkg/auth"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/models"
)

const (
	tracerName = "github.com/StricklySoft/clinic-hub/internal/pharmacy"

	maxIdentityBody  = 1 << 20
	maxErrorDetail   = 512
	usersPreviewPath = "/users?debug=1"
)

// IdentityClient calls the identity service on behalf of the current
// caller. The caller's bearer token is forwarded from the request
// context.
type IdentityClient struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

// NewIdentityClient creates a client for baseURL. If transport is nil,
// [http.DefaultTransport] is used.
func NewIdentityClient(baseURL string, timeout time.Duration, transport http.RoundTripper) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: auth.NewForwardingRoundTripper(ServiceName, transport),
		},
		tracer: otel.Tracer(tracerName),
	}
}

// StaffPreview is identity's answer to GET /users?debug=1.
type StaffPreview struct {
	models.DebugUsersResponse

	// Raw is the response body as received.
	Raw json.RawMessage
}

// PreviewUsers asks identity whether the caller may list users. Any
// failure, including a non-2xx answer, is [sserr.CodeUpstream].
func (c *IdentityClient) PreviewUsers(ctx context.Context) (_ *StaffPreview, retErr error) {
	ctx, span := c.tracer.Start(ctx, "identity.PreviewUsers", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usersPreviewPath, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "pharmacy: invalid IDENTITY_BASE_URL")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "pharmacy: identity service unreachable")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityBody))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "pharmacy: failed to read identity response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, sserr.Newf(sserr.CodeUpstream, "pharmacy: identity service returned status %d", resp.StatusCode).
			WithDetails(map[string]any{
				"status":  resp.StatusCode,
				"details": truncate(body, maxErrorDetail),
			})
	}

	preview := &StaffPreview{Raw: json.RawMessage(body)}
	if err := json.Unmarshal(body, &preview.DebugUsersResponse); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUpstream, "pharmacy: malformed identity response")
	}
	span.SetAttributes(attribute.Bool("identity.read_users", preview.OK))
	return preview, nil
}

func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
