package render

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/logger"
)

// Registry holds adapters in priority order: richer, more specific
// formats register first and are tried first during detection.
type Registry struct {
	adapters []Adapter
	names    map[string]struct{}
	mu       sync.RWMutex
	logger   *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		names:  make(map[string]struct{}),
		logger: logger.Get().With(zap.String("component", "adapter_registry")),
	}
}

// Register appends an adapter at the lowest priority position.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[adapter.Name()]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "adapter %s already registered", adapter.Name())
	}

	r.names[adapter.Name()] = struct{}{}
	r.adapters = append(r.adapters, adapter)
	r.logger.Info("panel adapter registered",
		zap.String("name", adapter.Name()),
		zap.String("format", string(adapter.Format())))
	return nil
}

// Detect returns the first adapter whose recognizer claims the value.
func (r *Registry) Detect(value interface{}) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, adapter := range r.adapters {
		if adapter.Recognize(value) {
			return adapter, true
		}
	}
	return nil, false
}

// List returns registered adapter names in priority order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Has reports whether an adapter with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.names[name]
	return exists
}

// Clear removes all registered adapters (mainly for testing).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = nil
	r.names = make(map[string]struct{})
}

// Register registers an adapter in the global registry.
func Register(adapter Adapter) error {
	return globalRegistry.Register(adapter)
}

// Detect finds an adapter in the global registry.
func Detect(value interface{}) (Adapter, bool) {
	return globalRegistry.Detect(value)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
