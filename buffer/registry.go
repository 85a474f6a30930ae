package buffer

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpures/internal/slotmap"
)

// Registry is the arena that owns buffer identities. Views and resize
// callbacks refer to buffers through registry keys, so a destroyed buffer
// is detected rather than dereferenced.
//
// Thread Safety: Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	dynamic *slotmap.Map[*DynamicBuffer]
	sorted  *slotmap.Map[*SortedUintBuffer]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		dynamic: slotmap.New[*DynamicBuffer](),
		sorted:  slotmap.New[*SortedUintBuffer](),
	}
}

func (r *Registry) addDynamic(b *DynamicBuffer) slotmap.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dynamic.Insert(b)
}

func (r *Registry) addSorted(b *SortedUintBuffer) slotmap.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted.Insert(b)
}

func (r *Registry) removeDynamic(k slotmap.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamic.Remove(k)
}

func (r *Registry) removeSorted(k slotmap.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sorted.Remove(k)
}

func (r *Registry) containsDynamic(k slotmap.Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dynamic.Contains(k)
}

// Resolve returns the live buffer that issued v.
func (r *Registry) Resolve(v View) (*DynamicBuffer, error) {
	r.mu.RLock()
	b, ok := r.dynamic.Get(v.owner)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s: buffer destroyed", ErrStaleView, v)
	}
	return b, nil
}

// Len returns the number of live buffers of both kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dynamic.Len() + r.sorted.Len()
}

// DynamicBuffers returns the live dynamic buffers in registry order.
func (r *Registry) DynamicBuffers() []*DynamicBuffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DynamicBuffer, 0, r.dynamic.Len())
	r.dynamic.Each(func(_ slotmap.Key, b *DynamicBuffer) { out = append(out, b) })
	return out
}

// SortedBuffers returns the live sorted buffers in registry order.
func (r *Registry) SortedBuffers() []*SortedUintBuffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SortedUintBuffer, 0, r.sorted.Len())
	r.sorted.Each(func(_ slotmap.Key, b *SortedUintBuffer) { out = append(out, b) })
	return out
}
