package lifecycle

import (
	"context"
	"sync/atomic"
)

// Component is a long-lived unit managed by the Orchestrator. The name of a
// component is assigned when it is added to the orchestrator.
type Component interface {
	// Prepare wires configuration. It must not perform I/O.
	Prepare(ctx context.Context) error

	// Start performs the I/O needed to become operational: dialing, listening,
	// declaring resources. Network dials go through retry.ConnectWithRetry so
	// that cancelling ctx interrupts them.
	Start(ctx context.Context) error

	// Stop releases every resource owned by the component. It is called at
	// most once by the orchestrator and must return nil when there is nothing
	// left to release. ctx carries the shutdown deadline.
	Stop(ctx context.Context) error
}

// State is the lifecycle state of a component or a broker channel.
type State int32

const (
	StateCreated State = iota
	StatePrepared
	StateStarted
	StateStopped
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePrepared:
		return "prepared"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// StateTracker holds a State that may be read concurrently. Failed is
// absorbing: once set, later transitions are ignored.
type StateTracker struct {
	v atomic.Int32
}

// Load returns the current state.
func (t *StateTracker) Load() State {
	return State(t.v.Load())
}

// Set moves to s unless the tracker is already Failed. It reports whether the
// transition happened.
func (t *StateTracker) Set(s State) bool {
	for {
		cur := t.v.Load()
		if State(cur) == StateFailed {
			return false
		}
		if t.v.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}

// Fail moves to Failed from any non-terminal state.
func (t *StateTracker) Fail() {
	for {
		cur := t.v.Load()
		if State(cur).IsTerminal() {
			return
		}
		if t.v.CompareAndSwap(cur, int32(StateFailed)) {
			return
		}
	}
}
