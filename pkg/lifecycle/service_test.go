package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/clinic-hub/internal/testutil"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

func mustBuild(t *testing.T, b *ServiceBuilder) *Service {
	t.Helper()
	svc, err := b.Build()
	require.NoError(t, err)
	return svc
}

func TestServiceBuilder_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewServiceBuilder("", "1.0.0").Build()
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)

	_, err = NewServiceBuilder("identity-service", "").Build()
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)

	_, err = NewServiceBuilder("identity-service", "1.0.0").WithDependency("", func(context.Context) error { return nil }).Build()
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)

	_, err = NewServiceBuilder("identity-service", "1.0.0").WithDependency("redis", nil).Build()
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
}

func TestService_StartStop(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions []string
	svc := mustBuild(t, NewServiceBuilder("pharmacy-service", "1.0.0").
		OnStateChange(func(old, next State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, string(old)+"->"+string(next))
		}))

	assert.Equal(t, StateUnknown, svc.State())
	assert.Equal(t, "pharmacy-service", svc.Name())
	assert.Equal(t, "1.0.0", svc.Version())

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, StateRunning, svc.State())

	info := svc.Info()
	require.NotNil(t, info.StartedAt)
	assert.GreaterOrEqual(t, info.Uptime.Nanoseconds(), int64(0))

	require.NoError(t, svc.Stop(ctx))
	assert.Equal(t, StateStopped, svc.State())
	assert.Nil(t, svc.Info().StartedAt)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"unknown->starting", "starting->running",
		"running->stopping", "stopping->stopped",
	}, transitions)
}

func TestService_StartTwiceConflicts(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewServiceBuilder("identity-service", "1.0.0"))
	require.NoError(t, svc.Start(context.Background()))

	err := svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeConflict)
	assert.Equal(t, StateRunning, svc.State())
}

func TestService_StartCanceledContext(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewServiceBuilder("identity-service", "1.0.0"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Start(ctx)
	testutil.RequireErrorCode(t, err, sserr.CodeTimeout)
	assert.Equal(t, StateUnknown, svc.State())
}

func TestService_HookOrder(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(name string) Hook {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	svc := mustBuild(t, NewServiceBuilder("pharmacy-service", "1.0.0").
		WithOnStart(record("migrate")).
		WithOnStart(record("listen")).
		WithOnStop(record("close-db")).
		WithOnStop(record("shutdown-http")))

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))

	assert.Equal(t, []string{"migrate", "listen", "shutdown-http", "close-db"}, order)
}

func TestService_StartHookFailure(t *testing.T) {
	t.Parallel()

	secondRan := false
	svc := mustBuild(t, NewServiceBuilder("pharmacy-service", "1.0.0").
		WithOnStart(func(context.Context) error { return errors.New("schema migration failed") }).
		WithOnStart(func(context.Context) error { secondRan = true; return nil }))

	err := svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.Equal(t, StateFailed, svc.State())
	assert.False(t, secondRan)

	// Stop on a failed service is a no-op.
	require.NoError(t, svc.Stop(context.Background()))
	assert.Equal(t, StateFailed, svc.State())
}

func TestService_StopRunsEveryHook(t *testing.T) {
	t.Parallel()

	ran := 0
	svc := mustBuild(t, NewServiceBuilder("identity-service", "1.0.0").
		WithOnStop(func(context.Context) error { ran++; return nil }).
		WithOnStop(func(context.Context) error { ran++; return errors.New("http shutdown timed out") }))

	require.NoError(t, svc.Start(context.Background()))
	err := svc.Stop(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.Equal(t, 2, ran)
	assert.Equal(t, StateFailed, svc.State())

	// A failed service can be restarted.
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
}

func TestService_Health(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewServiceBuilder("identity-service", "1.0.0"))

	err := svc.Health(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailable)

	require.NoError(t, svc.Start(context.Background()))
	assert.NoError(t, svc.Health(context.Background()))
}

func TestService_Ready(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	dbErr := error(nil)
	svc := mustBuild(t, NewServiceBuilder("pharmacy-service", "1.0.0").
		WithDependency("postgres", func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			return dbErr
		}).
		WithDependency("identity", func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("probe ran without a deadline")
			}
			return nil
		}))

	r := svc.Ready(context.Background())
	assert.False(t, r.Ready, "not running yet")
	assert.Equal(t, StateUnknown, r.State)

	require.NoError(t, svc.Start(context.Background()))
	r = svc.Ready(context.Background())
	assert.True(t, r.Ready)
	require.Len(t, r.Checks, 2)
	assert.Equal(t, CheckResult{Name: "postgres", Status: CheckOK}, r.Checks[0])
	assert.Equal(t, CheckResult{Name: "identity", Status: CheckOK}, r.Checks[1])

	mu.Lock()
	dbErr = errors.New("connection refused")
	mu.Unlock()

	r = svc.Ready(context.Background())
	assert.False(t, r.Ready)
	assert.Equal(t, CheckResult{Name: "postgres", Status: CheckFail, Error: "connection refused"}, r.Checks[0])

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ready":false,"state":"running","checks":[
		{"name":"postgres","status":"fail","error":"connection refused"},
		{"name":"identity","status":"ok"}]}`, string(data))
}

func TestService_StateHandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()
	svc := mustBuild(t, NewServiceBuilder("identity-service", "1.0.0").
		OnStateChange(func(State, State) { panic("boom") }))

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
}
