package transcribe

import (
	"fmt"
	"sort"
	"sync"
)

// Config carries backend settings as flat key/value pairs so every backend
// can be created through the same Factory signature. Common keys:
// api_key, base_url, model, url, iam_token, folder_id, text.
type Config map[string]string

// Get returns the first non-empty value among keys.
func (c Config) Get(keys ...string) string {
	for _, k := range keys {
		if v := c[k]; v != "" {
			return v
		}
	}
	return ""
}

// Factory creates an instance of T from a config map.
type Factory[T any] func(config Config) (T, error)

// Registry holds named factories for creating instances of T.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry creates a new empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		factories: make(map[string]Factory[T]),
	}
}

// Register adds a named factory to the registry.
func (r *Registry[T]) Register(name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates T using the named factory.
func (r *Registry[T]) Create(name string, config Config) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown backend %q (available: %v)", name, r.List())
	}
	return factory(config)
}

// Has returns true if the named factory exists.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered factory names in sorted order.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backends is the global transcription backend registry. Backends register
// themselves from init.
var Backends = NewRegistry[Transcriber]()
