// Package registry provides a small plugin mechanism: pluggable components
// (metrics sinks, forecasters) are declared in config by type name and built
// from their raw config map at startup.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Component names a pluggable implementation and carries its raw config.
type Component struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Builder constructs an implementation of T from its raw config.
type Builder[T any] func(map[string]any) (T, error)

// Registry maps type names to builders.
type Registry[T any] struct {
	mu       sync.RWMutex
	builders map[string]Builder[T]
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{builders: make(map[string]Builder[T])}
}

// Register adds a builder under the given type name. Registering the same
// name twice is an error so init-time collisions surface immediately.
func (r *Registry[T]) Register(name string, b Builder[T]) error {
	if b == nil {
		return fmt.Errorf("registry: nil builder for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("registry: %q already registered", name)
	}
	r.builders[name] = b
	return nil
}

// Build instantiates the component named by c.Type.
func (r *Registry[T]) Build(c Component) (T, error) {
	r.mu.RLock()
	b, ok := r.builders[c.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("registry: unknown type %q (known: %v)", c.Type, r.Names())
	}
	return b(c.Conf)
}

// Names lists the registered type names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Decode fills out using json tags, matching how koanf unmarshals config.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
