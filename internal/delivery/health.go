package delivery

import (
	"sort"
	"sync"
)

// EndpointHealth is the set of endpoints currently marked failed. The zero
// value is empty and ready to use.
type EndpointHealth struct {
	mu     sync.RWMutex
	failed map[string]struct{}
}

// MarkFailed adds name to the failed set and reports whether it was newly
// added.
func (h *EndpointHealth) MarkFailed(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failed == nil {
		h.failed = make(map[string]struct{})
	}
	if _, ok := h.failed[name]; ok {
		return false
	}
	h.failed[name] = struct{}{}
	return true
}

// IsFailed reports whether name is marked failed.
func (h *EndpointHealth) IsFailed(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.failed[name]
	return ok
}

// Failed returns the failed endpoint names in sorted order.
func (h *EndpointHealth) Failed() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.failed))
	for name := range h.failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears the failed set.
func (h *EndpointHealth) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = nil
}
