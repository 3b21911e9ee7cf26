package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNilComponent is returned by Add for a nil component.
	ErrNilComponent = errors.New("cannot register nil component")
	// ErrEmptyName is returned by Add for an empty component name.
	ErrEmptyName = errors.New("component must have a non-empty name")
)

// DuplicateComponentError is returned by Add when the name is taken.
type DuplicateComponentError struct {
	Name string
}

func (e *DuplicateComponentError) Error() string {
	return fmt.Sprintf("component %s is already registered", e.Name)
}

// DependencyNotRegisteredError is returned by Add when a stopAfter name does
// not refer to an already registered component.
type DependencyNotRegisteredError struct {
	Component  string
	Dependency string
}

func (e *DependencyNotRegisteredError) Error() string {
	return fmt.Sprintf("component %s: stop_after dependency %s is not registered", e.Component, e.Dependency)
}

// InvalidPhaseTransitionError is returned when a phase method is called twice
// or out of order.
type InvalidPhaseTransitionError struct {
	Operation string
	Phase     Phase
}

func (e *InvalidPhaseTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: orchestrator is in phase %s", e.Operation, e.Phase)
}

// ComponentPrepareFailedError names the component whose Prepare failed.
type ComponentPrepareFailedError struct {
	Component string
	Cause     error
}

func (e *ComponentPrepareFailedError) Error() string {
	return fmt.Sprintf("prepare failed for %s: %v", e.Component, e.Cause)
}

func (e *ComponentPrepareFailedError) Unwrap() error {
	return e.Cause
}

// ComponentStartFailedError names the component whose Start failed. Errors
// returned while rolling back already started components are kept in
// Teardown but are not part of the unwrap chain.
type ComponentStartFailedError struct {
	Component string
	Cause     error
	Teardown  []error
}

func (e *ComponentStartFailedError) Error() string {
	return fmt.Sprintf("initialization failed for %s: %v", e.Component, e.Cause)
}

func (e *ComponentStartFailedError) Unwrap() error {
	return e.Cause
}

// ComponentStopFailedError names a component whose Stop returned an error.
type ComponentStopFailedError struct {
	Component string
	Cause     error
}

func (e *ComponentStopFailedError) Error() string {
	return fmt.Sprintf("stop failed for %s: %v", e.Component, e.Cause)
}

func (e *ComponentStopFailedError) Unwrap() error {
	return e.Cause
}

// StopError aggregates every stop failure, in stop order.
type StopError struct {
	Failures []*ComponentStopFailedError
}

func (e *StopError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%d component(s) failed to stop: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *StopError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// ComponentNotFoundError is returned by Get for an unknown name.
type ComponentNotFoundError struct {
	Name string
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component %s is not registered", e.Name)
}

// ComponentTypeError is returned by Get when the component has another type.
type ComponentTypeError struct {
	Name string
	Want string
	Got  string
}

func (e *ComponentTypeError) Error() string {
	return fmt.Sprintf("component %s is %s, not %s", e.Name, e.Got, e.Want)
}
