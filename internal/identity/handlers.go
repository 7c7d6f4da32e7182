package identity

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/StricklySoft/clinic-hub/internal/serve"
	"github.com/StricklySoft/clinic-hub/pkg/auth"
	"github.com/StricklySoft/clinic-hub/pkg/claims"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/keycloak"
	"github.com/StricklySoft/clinic-hub/pkg/lifecycle"
	"github.com/StricklySoft/clinic-hub/pkg/models"
	"github.com/StricklySoft/clinic-hub/pkg/respond"
)

const (
	previewAllowed = "caller has read_users role (debug mode)"
	previewDenied  = "caller missing read_users role (debug mode)"

	maxPageSize = 1000
	redacted    = "[REDACTED]"
)

// UserLister lists realm users. *keycloak.UsersClient implements it.
type UserLister interface {
	ListUsers(ctx context.Context, opts keycloak.ListOptions) ([]keycloak.User, error)
}

// Server holds the identity service's HTTP handlers.
type Server struct {
	cfg   Config
	gate  *auth.Gate
	users UserLister
	svc   *lifecycle.Service
}

// NewServer wires the handlers. authn verifies inbound tokens and users
// backs GET /users.
func NewServer(cfg Config, authn auth.Authenticator, users UserLister, svc *lifecycle.Service) *Server {
	return &Server{
		cfg:   cfg,
		gate:  auth.NewGate(authn, Policy(cfg.ClientID), ServiceName),
		users: users,
		svc:   svc,
	}
}

// Routes returns the service's router.
//
//	GET /health
//	GET /ready
//	GET /users            users.list, read_users on SERVICE_CLIENT_ID
//	GET /users?debug=1    users.preview, any authenticated caller
//	GET /debug-token      only with DEBUG_ENDPOINTS=true
func (s *Server) Routes() http.Handler {
	r := serve.NewRouter(serve.RouterOptions{AllowedOrigins: s.cfg.AllowedOrigins})
	serve.MountProbes(r, s.svc)

	list := s.gate.Require(OpListUsers)(http.HandlerFunc(s.listUsers))
	preview := s.gate.Require(OpPreviewUsers)(http.HandlerFunc(s.previewUsers))
	r.Get("/users", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("debug") == "1" {
			preview.ServeHTTP(w, req)
			return
		}
		list.ServeHTTP(w, req)
	})

	if s.cfg.DebugEndpoints {
		r.Get("/debug-token", s.debugToken)
	}
	return r
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts, err := listOptions(r.URL.Query())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	users, err := s.users.ListUsers(ctx, opts)
	if err != nil {
		slog.WarnContext(ctx, "identity: user listing failed", "code", sserr.GetCode(err), "error", err)
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, users)
}

// previewUsers reports whether the caller could list users, without
// calling Keycloak.
func (s *Server) previewUsers(w http.ResponseWriter, r *http.Request) {
	c := auth.MustClaimsFromContext(r.Context())
	ok := auth.HasClientRole(c, s.cfg.ClientID, RoleReadUsers)

	slog.InfoContext(r.Context(), "identity: users preview",
		"subject", c.Subject,
		"client_id", s.cfg.ClientID,
		"has_read_users", ok,
	)

	msg := previewDenied
	if ok {
		msg = previewAllowed
	}
	respond.JSON(w, http.StatusOK, models.DebugUsersResponse{
		Debug:         true,
		OK:            ok,
		Message:       msg,
		ClaimsPreview: models.PreviewOf(c),
	})
}

// debugToken echoes the decoded bearer token and the request headers
// with credentials redacted.
func (s *Server) debugToken(w http.ResponseWriter, r *http.Request) {
	authHeader := "(none)"
	var decoded *claims.Claims
	if raw := r.Header.Get(auth.HeaderAuthorization); raw != "" {
		authHeader = redacted
		if token := auth.ExtractBearerToken(raw); token != "" {
			authHeader = "Bearer " + redacted
			decoded = claims.Decode(token)
		}
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"message":    "Debug endpoint hit",
		"authHeader": authHeader,
		"decoded":    decoded,
		"headers":    redactHeaders(r.Header),
	})
}

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := strings.ToLower(k)
		if sensitiveHeaders[key] {
			out[key] = redacted
			continue
		}
		out[key] = strings.Join(v, ", ")
	}
	return out
}

func listOptions(q url.Values) (keycloak.ListOptions, error) {
	opts := keycloak.ListOptions{Search: q.Get("search")}
	var err error
	if opts.First, err = intParam(q, "first", 0); err != nil {
		return opts, err
	}
	if opts.Max, err = intParam(q, "max", maxPageSize); err != nil {
		return opts, err
	}
	return opts, nil
}

func intParam(q url.Values, name string, upper int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (upper > 0 && n > upper) {
		return 0, sserr.Validationf("query parameter %q must be a non-negative integer", name).
			WithDetail("field", name)
	}
	return n, nil
}
