package corpmap

import (
	"sync"

	"github.com/opencorpdata/corpmap/pkg/store"
)

// Hook function types for entity registry events.
type (
	// EntityAddedHook is called when an entity enters the registry.
	EntityAddedHook func(entity *store.StoredEntity)

	// EntityUpdatedHook is called when a persisted entity is rewritten.
	EntityUpdatedHook func(old, updated *store.StoredEntity)
)

// Compile-time interface check to ensure proper implementation.
var _ Hooks = (*client)(nil)

// Hooks provides access to event callback registration.
type Hooks interface {
	// OnEntityAdded registers a callback for newly registered entities.
	OnEntityAdded(EntityAddedHook)

	// OnEntityUpdated registers a callback for rewritten entities.
	OnEntityUpdated(EntityUpdatedHook)
}

// OnEntityAdded registers a callback for newly registered entities.
func (c *client) OnEntityAdded(fn EntityAddedHook) {
	c.hooks.onAdded(fn)
}

// OnEntityUpdated registers a callback for rewritten entities.
func (c *client) OnEntityUpdated(fn EntityUpdatedHook) {
	c.hooks.onUpdated(fn)
}

// hooks manages event callbacks for registry changes.
type hooks struct {
	mu            sync.RWMutex
	entityAdded   []EntityAddedHook
	entityUpdated []EntityUpdatedHook
}

func newHooks() *hooks {
	return &hooks{}
}

func (h *hooks) onAdded(fn EntityAddedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entityAdded = append(h.entityAdded, fn)
}

func (h *hooks) onUpdated(fn EntityUpdatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entityUpdated = append(h.entityUpdated, fn)
}

func (h *hooks) triggerAdded(entity *store.StoredEntity) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.entityAdded {
		fn(entity)
	}
}

func (h *hooks) triggerUpdated(old, updated *store.StoredEntity) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.entityUpdated {
		fn(old, updated)
	}
}
