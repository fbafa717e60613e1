package engine

import (
	"sync"

	"github.com/kevinvandever/secureask/internal/model"
)

// Registry tracks in-flight queries by id. Each id is written by exactly one
// ProcessQuery call, but distinct queries insert and delete concurrently, so
// the map is lock-guarded.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*model.ProcessingContext
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*model.ProcessingContext)}
}

// Add registers an in-flight query.
func (r *Registry) Add(id string, pc *model.ProcessingContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = pc
}

// Remove deregisters a query. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Get returns the processing context for id, if the query is in flight.
func (r *Registry) Get(id string) (*model.ProcessingContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.entries[id]
	return pc, ok
}

// Len returns the number of in-flight queries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
