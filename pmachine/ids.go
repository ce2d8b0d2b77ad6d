package pmachine

import (
	"fmt"
	"sync"
)

// Registry hands out "<TypeName>_<sequence>" identifiers, one counter per
// type name.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]int)}
}

// Next returns the next identifier for typeName.
func (r *Registry) Next(typeName string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.counters[typeName]
	r.counters[typeName] = n + 1
	return fmt.Sprintf("%s_%d", typeName, n)
}

var defaultRegistry = NewRegistry()

// NextID draws from the process-wide registry.
func NextID(typeName string) string {
	return defaultRegistry.Next(typeName)
}
