package runtime

import (
	"fmt"
	"sync"
)

// Registry holds the discovered runtime adapters. It is an explicit value —
// construct one at program entry and pass it to consumers; there is no
// package-level registry.
//
// Registration order is preserved: List returns adapters in the order they
// were added, which the Supervisor uses as the fallback preference order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Add registers an adapter. Returns ErrAlreadyRegistered if an adapter with
// the same id is present.
func (r *Registry) Add(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.adapters[id] = a
	r.order = append(r.order, id)
	return nil
}

// Get returns the adapter with the given id.
// Returns ErrUnknownRuntime if no such adapter is registered.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuntime, id)
	}
	return a, nil
}

// List returns all registered adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Descriptors returns the descriptors of all registered adapters in
// registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Describe(r.adapters[id]))
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
