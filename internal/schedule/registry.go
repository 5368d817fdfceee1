package schedule

import (
	"sort"
	"strings"
	"sync"
)

// Key builds the registry key of a tenant's job family.
func Key(tenantID, family string) string {
	return tenantID + ":" + family
}

// Registry owns live handles keyed by tenantId:family. At most one handle per key.
type Registry struct {
	mu      sync.Mutex
	handles map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Replace stops the handle stored under key, if any, then stores h.
func (r *Registry) Replace(key string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.handles[key]; ok {
		old.Stop()
	}
	r.handles[key] = h
}

// Remove stops and forgets the handle under key.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	if ok {
		h.Stop()
		delete(r.handles, key)
	}
	return ok
}

// StopPrefix stops every handle of a tenant and returns how many were removed.
func (r *Registry) StopPrefix(tenantID string) int {
	prefix := tenantID + ":"
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, h := range r.handles {
		if strings.HasPrefix(key, prefix) {
			h.Stop()
			delete(r.handles, key)
			n++
		}
	}
	return n
}

// StopAll stops every handle and empties the registry.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.handles)
	for _, h := range r.handles {
		h.Stop()
	}
	r.handles = make(map[string]Handle)
	return n
}

// Count returns the number of live handles for a tenant.
func (r *Registry) Count(tenantID string) int {
	prefix := tenantID + ":"
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.handles {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[key]
	return ok
}

// Keys returns registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
