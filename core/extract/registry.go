package extract

import (
	"fmt"
	"slices"
	"sync"
)

// Factory constructs an extractor. It runs at most once per name and registry.
type Factory func() (Extractor, error)

// Registry resolves extractors by name and caches the constructed instances.
// Lookups are safe for concurrent use; construction uses double-checked locking
// so two concurrent first lookups build a single instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Extractor
}

// NewRegistry returns a registry preloaded with the built-in dialects.
func NewRegistry() *Registry {
	registry := &Registry{
		factories: make(map[string]Factory, len(builtinShapes)),
		instances: make(map[string]Extractor),
	}
	for name, shape := range builtinShapes {
		registry.factories[name] = shapeFactory(name, shape)
	}
	return registry
}

func shapeFactory(name string, shape Shape) Factory {
	return func() (Extractor, error) {
		return NewExtractor(name, shape)
	}
}

// Register adds a named extractor factory. Names are unique within a registry.
func (registry *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("extractor name and factory are required")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.factories[name]; exists {
		return fmt.Errorf("extractor %q already registered", name)
	}
	registry.factories[name] = factory
	return nil
}

// RegisterShape is a convenience wrapper around Register for shape-based extractors.
func (registry *Registry) RegisterShape(name string, shape Shape) error {
	if err := shape.validate(); err != nil {
		return fmt.Errorf("invalid shape for extractor %q: %w", name, err)
	}
	return registry.Register(name, shapeFactory(name, shape))
}

// Get returns the extractor registered under name, constructing it on first use.
func (registry *Registry) Get(name string) (Extractor, error) {
	registry.mu.RLock()
	extractor, exists := registry.instances[name]
	registry.mu.RUnlock()

	if exists {
		return extractor, nil
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	// Double-check after acquiring write lock
	if extractor, exists := registry.instances[name]; exists {
		return extractor, nil
	}

	factory, known := registry.factories[name]
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}

	extractor, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to construct extractor %q: %w", name, err)
	}
	registry.instances[name] = extractor
	return extractor, nil
}

// Names returns the registered extractor names in sorted order.
func (registry *Registry) Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
