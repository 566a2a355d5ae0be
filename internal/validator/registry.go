package validator

import (
	"fmt"
	"sort"
	"sync"

	"metarepo/internal/model"
)

// Factory builds a validator instance.
type Factory func() Validator

// Registry maps (kind, class name) to a validator factory. It is filled at
// start-up; lookups of unknown names always fail.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[Kind]map[string]Factory{}}
}

// Register adds a factory. Registering the same name twice for a kind is an error.
func (r *Registry) Register(kind Kind, name string, f Factory) error {
	if kind.Section() == "" {
		return fmt.Errorf("unknown validator kind %q", kind)
	}
	if name == "" || f == nil {
		return fmt.Errorf("validator name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.factories[kind]
	if !ok {
		byName = map[string]Factory{}
		r.factories[kind] = byName
	}
	if _, dup := byName[name]; dup {
		return fmt.Errorf("validator %s/%s already registered", kind, name)
	}
	byName[name] = f
	return nil
}

// Resolve returns a fresh validator for name, or ErrUnresolvedType.
func (r *Registry) Resolve(kind Kind, name string) (Validator, error) {
	r.mu.RLock()
	f, ok := r.factories[kind][name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no %s validator named %q", model.ErrUnresolvedType, kind, name)
	}
	return f(), nil
}

// Names lists the registered names for kind, sorted.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories[kind]))
	for name := range r.factories[kind] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
