package graph

import (
	"sync"
)

// HotSwapStore is a thread-safe handle whose underlying Store can be
// replaced wholesale, e.g. after the input files were re-imported.
type HotSwapStore struct {
	mu      sync.RWMutex
	current *Store
}

func NewHotSwapStore(initial *Store) *HotSwapStore {
	return &HotSwapStore{current: initial}
}

// Swap atomically replaces the current store and returns the previous one.
// The old store stays valid for readers that still hold it.
func (h *HotSwapStore) Swap(next *Store) *Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = next
	return prev
}

// Current returns the store in use.
func (h *HotSwapStore) Current() *Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// View runs fn against the current store under its read lock.
func (h *HotSwapStore) View(fn func(s *Store) error) error {
	s := h.Current()
	return s.View(func() error { return fn(s) })
}
