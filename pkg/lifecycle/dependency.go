package lifecycle

import (
	"context"
	"errors"
	"time"
)

// DefaultProbeTimeout bounds each dependency probe run by [Service.Ready]
// when the caller's context carries no deadline.
const DefaultProbeTimeout = 2 * time.Second

// Probe checks one external dependency, such as a database ping.
type Probe func(ctx context.Context) error

// Dependency is a named readiness probe.
type Dependency struct {
	Name  string
	Probe Probe
}

// NewDependency validates name and probe.
func NewDependency(name string, probe Probe) (Dependency, error) {
	if name == "" {
		return Dependency{}, errors.New("lifecycle: dependency name must not be empty")
	}
	if probe == nil {
		return Dependency{}, errors.New("lifecycle: dependency " + name + " has no probe")
	}
	return Dependency{Name: name, Probe: probe}, nil
}

// CheckStatus is the outcome of one probe.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckFail CheckStatus = "fail"
)

// CheckResult is one entry of a [Readiness] report. Error holds the
// probe's error message and is meant for operators, not end users.
type CheckResult struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// Readiness is the body of the /ready probe.
type Readiness struct {
	Ready  bool          `json:"ready"`
	State  State         `json:"state"`
	Checks []CheckResult `json:"checks,omitempty"`
}

func runProbe(ctx context.Context, dep Dependency) CheckResult {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultProbeTimeout)
		defer cancel()
	}
	if err := dep.Probe(ctx); err != nil {
		return CheckResult{Name: dep.Name, Status: CheckFail, Error: err.Error()}
	}
	return CheckResult{Name: dep.Name, Status: CheckOK}
}
