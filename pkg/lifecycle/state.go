// Package lifecycle runs a service through its start and stop sequence
// and reports health and readiness for the HTTP probes.
//
// A [Service] moves through a small state machine:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed. Stopped and Failed may
// move back to Starting for a restart. Transitions are checked against
// [ValidTransition].
//
// Start hooks run in registration order and stop hooks in reverse, so a
// resource opened first is closed last. Readiness probes registered with
// [ServiceBuilder.WithDependency] are evaluated on every call to
// [Service.Ready].
package lifecycle

import "slices"

// State is the lifecycle state of a [Service]. The zero value is not a
// valid state; services begin in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a service that has never been started.
	StateUnknown State = "unknown"

	// StateStarting is held while start hooks run.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Service.Health] succeeds.
	StateRunning State = "running"

	// StateStopping is held while stop hooks run.
	StateStopping State = "stopping"

	// StateStopped follows a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed follows a hook error.
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether a service may move from one state to
// another. Same-state transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	return slices.Contains(validTransitions[from], to)
}
