package view

import (
	"errors"
	"fmt"
	"sync"
)

// Registry errors.
var (
	// ErrDuplicateViewType is returned when a view type is already
	// registered.
	ErrDuplicateViewType = errors.New("view: duplicate view type")

	// ErrViewTypeNotFound is returned for lookups of unregistered
	// view types.
	ErrViewTypeNotFound = errors.New("view: view type not found")

	// ErrDuplicateExtension is returned when a file extension is
	// already mapped to a view type.
	ErrDuplicateExtension = errors.New("view: extension already mapped")

	// ErrNilFactory is returned when registering a nil factory.
	ErrNilFactory = errors.New("view: factory is nil")
)

// Registry maps view types to factories and file extensions to view
// types.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	extensions map[string]string // file extension -> view type
}

// NewRegistry creates an empty view registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[string]Factory),
		extensions: make(map[string]string),
	}
}

// Register binds a view type to a factory.
func (r *Registry) Register(viewType string, factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[viewType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateViewType, viewType)
	}
	r.factories[viewType] = factory
	return nil
}

// Unregister removes a view type binding and any extension mappings
// pointing at it. Returns true if the view type was registered.
func (r *Registry) Unregister(viewType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[viewType]; !exists {
		return false
	}
	delete(r.factories, viewType)
	for ext, vt := range r.extensions {
		if vt == viewType {
			delete(r.extensions, ext)
		}
	}
	return true
}

// RegisterExtensions maps file extensions (without the dot) to a view
// type. The view type must already be registered. On conflict nothing
// is mapped.
func (r *Registry) RegisterExtensions(exts []string, viewType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[viewType]; !exists {
		return fmt.Errorf("%w: %s", ErrViewTypeNotFound, viewType)
	}
	for _, ext := range exts {
		if owner, taken := r.extensions[ext]; taken {
			return fmt.Errorf("%w: %s -> %s", ErrDuplicateExtension, ext, owner)
		}
	}
	for _, ext := range exts {
		r.extensions[ext] = viewType
	}
	return nil
}

// UnregisterExtensions removes extension mappings. Unknown extensions
// are ignored.
func (r *Registry) UnregisterExtensions(exts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		delete(r.extensions, ext)
	}
}

// Create instantiates a view of the given type.
func (r *Registry) Create(viewType string) (View, error) {
	r.mu.RLock()
	factory, ok := r.factories[viewType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewTypeNotFound, viewType)
	}
	return factory(), nil
}

// TypeForExtension resolves the view type that opens files with the
// given extension.
func (r *Registry) TypeForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vt, ok := r.extensions[ext]
	return vt, ok
}

// Has reports whether a view type is registered.
func (r *Registry) Has(viewType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[viewType]
	return ok
}
