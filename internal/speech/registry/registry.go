package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBackend is returned by Create for an unregistered name.
var ErrUnknownBackend = errors.New("unknown backend")

// Factory creates an instance of T from options C.
type Factory[C, T any] func(opts C) (T, error)

// Registry holds named factories for creating instances of T.
type Registry[C, T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[C, T]
}

// New creates a new empty registry.
func New[C, T any]() *Registry[C, T] {
	return &Registry[C, T]{
		factories: make(map[string]Factory[C, T]),
	}
}

// Register adds a named factory to the registry.
func (r *Registry[C, T]) Register(name string, factory Factory[C, T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates T using the named factory.
func (r *Registry[C, T]) Create(name string, opts C) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("%w %q", ErrUnknownBackend, name)
	}

	return factory(opts)
}

// Has returns true if the named factory exists.
func (r *Registry[C, T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered factory names in sorted order.
func (r *Registry[C, T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
