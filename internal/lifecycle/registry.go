package lifecycle

import (
	"sync"
)

// registration is one entry of the Registry.
type registration struct {
	name      string
	component Component
	stopAfter []string
	state     StateTracker
}

// Registry is an ordered set of named components plus their stop_after
// edges. Edges may only point at names registered earlier, so the relation
// is acyclic by construction. The stop order is resolved on every Add.
type Registry struct {
	mu         sync.RWMutex
	entries    []*registration
	byName     map[string]*registration
	dependents map[string][]string // name -> components listing it in stop_after
	stopOrder  []*registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]*registration),
		dependents: make(map[string][]string),
	}
}

// Add registers component under name. Every stopAfter entry must name an
// already registered component; the new component will be stopped before
// each of them.
func (r *Registry) Add(name string, component Component, stopAfter ...string) error {
	if component == nil {
		return ErrNilComponent
	}
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return &DuplicateComponentError{Name: name}
	}

	deps := make([]string, 0, len(stopAfter))
	seen := make(map[string]bool, len(stopAfter))
	for _, dep := range stopAfter {
		if _, ok := r.byName[dep]; !ok {
			return &DependencyNotRegisteredError{Component: name, Dependency: dep}
		}
		if seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}

	reg := &registration{
		name:      name,
		component: component,
		stopAfter: deps,
	}
	r.entries = append(r.entries, reg)
	r.byName[name] = reg
	for _, dep := range deps {
		r.dependents[dep] = append(r.dependents[dep], name)
	}

	r.stopOrder = r.resolveStopOrder()
	return nil
}

// resolveStopOrder walks the registrations from the most recent one and
// repeatedly takes the latest component whose dependents have all been
// placed already.
func (r *Registry) resolveStopOrder() []*registration {
	placed := make(map[string]bool, len(r.entries))
	order := make([]*registration, 0, len(r.entries))

	for len(order) < len(r.entries) {
		progressed := false
		for i := len(r.entries) - 1; i >= 0; i-- {
			reg := r.entries[i]
			if placed[reg.name] || !r.dependentsPlaced(reg.name, placed) {
				continue
			}
			placed[reg.name] = true
			order = append(order, reg)
			progressed = true
			break
		}
		if !progressed {
			// Unreachable while edges only point backwards.
			panic("lifecycle: stop_after relation contains a cycle")
		}
	}
	return order
}

func (r *Registry) dependentsPlaced(name string, placed map[string]bool) bool {
	for _, d := range r.dependents[name] {
		if !placed[d] {
			return false
		}
	}
	return true
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns the component names in registration (start) order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, reg := range r.entries {
		names = append(names, reg.name)
	}
	return names
}

// StopOrder returns the component names in the order they will be stopped.
func (r *Registry) StopOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stopOrder))
	for _, reg := range r.stopOrder {
		names = append(names, reg.name)
	}
	return names
}

// StopAfter returns the stop_after names declared for name.
func (r *Registry) StopAfter(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	if !ok {
		return nil
	}
	return append([]string(nil), reg.stopAfter...)
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return reg.component, true
}

// State returns the lifecycle state of the named component.
func (r *Registry) State(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	if !ok {
		return StateCreated, false
	}
	return reg.state.Load(), true
}

func (r *Registry) startSequence() []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*registration(nil), r.entries...)
}

func (r *Registry) stopSequence() []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*registration(nil), r.stopOrder...)
}
