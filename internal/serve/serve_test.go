package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/clinic-hub/pkg/lifecycle"
)

func newService(t *testing.T, b *lifecycle.ServiceBuilder) *lifecycle.Service {
	t.Helper()
	svc, err := b.Build()
	require.NoError(t, err)
	return svc
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestNewRouter_NotFound(t *testing.T) {
	t.Parallel()
	r := NewRouter(RouterOptions{})

	rec, body := get(t, r, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	t.Parallel()
	r := NewRouter(RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}})
	r.Get("/users", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/users", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProbes(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("connection refused")
	svc := newService(t, lifecycle.NewServiceBuilder("pharmacy-service", "test").
		WithDependency("postgres", func(context.Context) error { return dbErr }))
	r := NewRouter(RouterOptions{})
	MountProbes(r, svc)

	rec, body := get(t, r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unknown", body["status"])

	require.NoError(t, svc.Start(context.Background()))

	rec, body = get(t, r, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, body)

	rec, body = get(t, r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, "running", body["state"])
}

func TestAccessLog_OmitsAuthorization(t *testing.T) {
	// Replaces the default logger; not parallel.
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, "/users", line["path"])
	assert.NotContains(t, buf.String(), "secret-token")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := NewLogger(&buf, "identity-service", "warn")

	logger.Info("dropped")
	logger.Warn("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "identity-service", line["service"])
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := false
	svc := newService(t, lifecycle.NewServiceBuilder("identity-service", "test").
		WithOnStart(func(context.Context) error { cancel(); return nil }).
		WithOnStop(func(context.Context) error { stopped = true; return nil }))

	srv := NewServer(0, http.NotFoundHandler())
	require.NoError(t, Run(ctx, svc, srv))
	assert.True(t, stopped)
	assert.Equal(t, lifecycle.StateStopped, svc.State())
}

func TestRun_StartFailure(t *testing.T) {
	t.Parallel()
	svc := newService(t, lifecycle.NewServiceBuilder("identity-service", "test").
		WithOnStart(func(context.Context) error { return errors.New("redis unreachable") }))

	err := Run(context.Background(), svc, NewServer(0, http.NotFoundHandler()))
	require.Error(t, err)
	assert.Equal(t, lifecycle.StateFailed, svc.State())
}
