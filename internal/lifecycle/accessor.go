package lifecycle

import (
	"fmt"
	"reflect"
)

// Get returns the component registered under name as a T.
func Get[T any](o *Orchestrator, name string) (T, error) {
	var zero T

	c, ok := o.registry.Lookup(name)
	if !ok {
		return zero, &ComponentNotFoundError{Name: name}
	}

	typed, ok := c.(T)
	if !ok {
		return zero, &ComponentTypeError{
			Name: name,
			Want: reflect.TypeOf((*T)(nil)).Elem().String(),
			Got:  fmt.Sprintf("%T", c),
		}
	}
	return typed, nil
}

// MustGet is Get for wiring code where a missing component is a programming
// error.
func MustGet[T any](o *Orchestrator, name string) T {
	c, err := Get[T](o, name)
	if err != nil {
		panic(err)
	}
	return c
}
