package lifecycle

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

const tracerName = "github.com/StricklySoft/clinic-hub/pkg/lifecycle"

// Hook runs during Start or Stop. A non-nil error aborts the transition
// and leaves the service in [StateFailed].
type Hook func(ctx context.Context) error

// StateChangeHandler observes transitions. Handlers run synchronously
// under the state lock and must not call back into the service.
type StateChangeHandler func(old, new State)

// Info is a point-in-time snapshot of a service.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service tracks the lifecycle of one process. It is safe for concurrent
// use. Build one with [NewServiceBuilder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger

	onStart       []Hook
	onStop        []Hook
	deps          []Dependency
	stateHandlers []StateChangeHandler
}

func (s *Service) Name() string    { return s.name }
func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot. StartedAt and Uptime are set only while
// running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns nil while the service is running and
// [sserr.CodeUnavailable] otherwise. It does not probe dependencies.
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable, "lifecycle: %s is %s", s.name, state)
	}
	return nil
}

// Ready runs every dependency probe concurrently. The service is ready
// when it is running and every probe passed.
func (s *Service) Ready(ctx context.Context) Readiness {
	state := s.State()
	r := Readiness{State: state}
	if len(s.deps) > 0 {
		r.Checks = make([]CheckResult, len(s.deps))
		var g errgroup.Group
		for i, dep := range s.deps {
			g.Go(func() error {
				r.Checks[i] = runProbe(ctx, dep)
				return nil
			})
		}
		_ = g.Wait()
	}

	r.Ready = state == StateRunning
	for _, c := range r.Checks {
		if c.Status != CheckOK {
			r.Ready = false
		}
	}
	return r
}

// SetState moves the service to next, notifying state handlers. It
// returns [sserr.CodeConflict] for a transition the state machine
// forbids.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict, "lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start runs the start hooks in order and moves the service to
// [StateRunning]. It may be called from Unknown, Stopped or Failed.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: starting service", "service", s.name, "version", s.version)

	for i, hook := range s.onStart {
		if err := hook(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "hook", i, "error", err)
			_ = s.SetState(StateFailed)
			return s.fail(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return s.fail(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop runs the stop hooks in reverse order and moves the service to
// [StateStopped]. Stopping a stopped or failed service is a no-op. Every
// hook runs even if an earlier one fails; the first error is returned.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	var first error
	for i, hook := range slices.Backward(s.onStop) {
		if err := hook(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "hook", i, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		_ = s.SetState(StateFailed)
		return s.fail(span, sserr.Wrap(first, sserr.CodeInternal, "lifecycle: stop hook failed"))
	}

	if err := s.SetState(StateStopped); err != nil {
		return s.fail(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ServiceBuilder assembles a [Service].
//
//	svc, err := lifecycle.NewServiceBuilder("pharmacy-service", version).
//	    WithOnStart(store.Migrate).
//	    WithOnStop(func(context.Context) error { db.Close(); return nil }).
//	    WithDependency("postgres", db.Health).
//	    Build()
type ServiceBuilder struct {
	name          string
	version       string
	logger        *slog.Logger
	onStart       []Hook
	onStop        []Hook
	deps          []Dependency
	stateHandlers []StateChangeHandler
	errs          []error
}

func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{name: name, version: version}
}

// WithLogger overrides [slog.Default].
func (b *ServiceBuilder) WithLogger(logger *slog.Logger) *ServiceBuilder {
	b.logger = logger
	return b
}

// WithOnStart appends a start hook. Nil hooks are ignored.
func (b *ServiceBuilder) WithOnStart(hook Hook) *ServiceBuilder {
	if hook != nil {
		b.onStart = append(b.onStart, hook)
	}
	return b
}

// WithOnStop appends a stop hook. Stop hooks run in reverse order.
func (b *ServiceBuilder) WithOnStop(hook Hook) *ServiceBuilder {
	if hook != nil {
		b.onStop = append(b.onStop, hook)
	}
	return b
}

// WithDependency registers a readiness probe.
func (b *ServiceBuilder) WithDependency(name string, probe Probe) *ServiceBuilder {
	dep, err := NewDependency(name, probe)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.deps = append(b.deps, dep)
	return b
}

func (b *ServiceBuilder) OnStateChange(handler StateChangeHandler) *ServiceBuilder {
	b.stateHandlers = append(b.stateHandlers, handler)
	return b
}

// Build returns [sserr.CodeValidation] if the name or version is empty
// or a dependency was malformed.
func (b *ServiceBuilder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service version must not be empty")
	}
	if len(b.errs) > 0 {
		return nil, sserr.Wrap(b.errs[0], sserr.CodeValidation, "lifecycle: invalid dependency")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		name:          b.name,
		version:       b.version,
		state:         StateUnknown,
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
		onStart:       slices.Clone(b.onStart),
		onStop:        slices.Clone(b.onStop),
		deps:          slices.Clone(b.deps),
		stateHandlers: slices.Clone(b.stateHandlers),
	}, nil
}
