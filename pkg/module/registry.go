package module

import (
	"context"
	"fmt"
	"sync"
)

// Registry is a Resolver backed by explicit registrations, keyed by module
// source. Version is passed through to the factory so one source can serve
// several catalog versions.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Factory builds a module for one source at a specific version.
type Factory func(version string) (Module, error)

// NewRegistry creates an empty registry with the null module preinstalled.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("null", func(string) (Module, error) { return Null{}, nil })
	return r
}

// Register installs a factory for a module source, replacing any previous
// registration.
func (r *Registry) Register(source string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[source] = f
}

// Resolve implements Resolver.
func (r *Registry) Resolve(source, version string) (Module, error) {
	r.mu.RLock()
	f, ok := r.factories[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no module registered for source %q (register it before running apply)", source)
	}
	return f(version)
}

// Default is the registry the CLI resolves against. Embedding programs
// register their modules here before executing commands.
var Default = NewRegistry()

// Null is a module that provisions nothing: Apply echoes its inputs as
// outputs and Destroy is a no-op. Useful for smoke-testing catalogs.
type Null struct{}

// Apply implements Module.
func (Null) Apply(_ context.Context, inputs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil
}

// Destroy implements Module.
func (Null) Destroy(context.Context, map[string]any) error {
	return nil
}
