package operations

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func is one external retrieval operation: a stable name bound to a function
// taking a parameter map and returning a payload or an error. How an
// operation computes its result is its own business.
type Func func(ctx context.Context, params map[string]string) (string, error)

// Registry maps operation names to their implementations. Registration
// happens at startup; lookups are concurrent-safe afterwards.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Func)}
}

// Register binds name to fn, replacing any previous binding.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = fn
}

// Resolve returns the operation bound to name.
func (r *Registry) Resolve(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.ops[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	return fn, nil
}

// Names returns all registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
