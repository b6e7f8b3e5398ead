package sources

import (
	"sync"

	"github.com/opencorpdata/corpmap/pkg/company"
)

// Registry is a thread-safe container for managing source adapters.
// Registration order is preserved so deployments can rank discovery sources
// by preference.
type Registry struct {
	mu       sync.RWMutex
	adapters map[company.SourceID]Adapter
	order    []company.SourceID
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[company.SourceID]Adapter),
	}
}

// Get returns an adapter by ID.
func (r *Registry) Get(id company.SourceID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, found := r.adapters[id]
	return a, found
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.ID()]; !exists {
		r.order = append(r.order, a.ID())
	}
	r.adapters[a.ID()] = a
}

// Delete removes an adapter by ID.
func (r *Registry) Delete(id company.SourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; !exists {
		return
	}
	delete(r.adapters, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// List returns all adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapters := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		adapters = append(adapters, r.adapters[id])
	}
	return adapters
}

// IDs returns all adapter IDs in registration order.
func (r *Registry) IDs() []company.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]company.SourceID, len(r.order))
	copy(ids, r.order)
	return ids
}

// ByPattern returns the adapters wired into the given query pattern,
// in registration order.
func (r *Registry) ByPattern(p Pattern) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var adapters []Adapter
	for _, id := range r.order {
		if a := r.adapters[id]; a.Pattern() == p {
			adapters = append(adapters, a)
		}
	}
	return adapters
}
