package tool

import (
	"sort"
	"sync"
)

// Registry is the closed set of specs an agent may dispatch.
// Registration happens at construction; once frozen the registry is
// read-only and safe to share between concurrent runs.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]*Spec
	order  []string
	frozen bool
}

// NewRegistry creates a registry that already contains the finish spec.
func NewRegistry(specs ...*Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]*Spec)}
	if err := r.Register(Finish()); err != nil {
		return nil, err
	}
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a spec.
func (r *Registry) Register(s *Spec) error {
	if s == nil || s.Name() == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.specs[s.Name()]; exists {
		return ErrToolExists
	}
	r.specs[s.Name()] = s
	r.order = append(r.order, s.Name())
	return nil
}

// Freeze ends registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether registration has ended.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Resolve looks up a spec by name. Unknown names yield ok=false.
func (r *Registry) Resolve(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.specs[name]
	return s, ok
}

// Specs returns all specs in registration order.
func (r *Registry) Specs() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered specs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
