package waiter

import (
	"context"
	"sort"
	"sync"
)

// Map holds at most one waiter per key.
type Map[T any] struct {
	mu      sync.Mutex
	waiters map[string]*Waiter[T]
}

// NewMap creates an empty waiter map
func NewMap[T any]() *Map[T] {
	return &Map[T]{waiters: make(map[string]*Waiter[T])}
}

// GetOrCreate returns the waiter for key, creating it when absent. created
// is true only for the caller that inserted it.
func (m *Map[T]) GetOrCreate(key string) (w *Waiter[T], created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.waiters[key]; ok {
		return existing, false
	}
	w = New[T]()
	m.waiters[key] = w
	return w, true
}

// Get returns the waiter for key if one exists
func (m *Map[T]) Get(key string) (*Waiter[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.waiters[key]
	return w, ok
}

// Has reports whether a waiter exists for key
func (m *Map[T]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes the waiter for key
func (m *Map[T]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.waiters, key)
}

// DeleteIf removes the waiter for key only if it is still w. A waiter that
// was replaced after a reset is left alone.
func (m *Map[T]) DeleteIf(key string, w *Waiter[T]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.waiters[key]; ok && current == w {
		delete(m.waiters, key)
		return true
	}
	return false
}

// Keys returns the keys currently holding a waiter, sorted
func (m *Map[T]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.waiters))
	for key := range m.waiters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of waiters
func (m *Map[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// Reset drops every waiter. Goroutines already blocked on a dropped waiter
// keep waiting on it; they are settled by whichever worker owns it.
func (m *Map[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.waiters = make(map[string]*Waiter[T])
}

// DeleteSettled drops every settled waiter and keeps the pending ones. It
// returns the number of waiters dropped.
func (m *Map[T]) DeleteSettled() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, w := range m.waiters {
		if w.Settled() {
			delete(m.waiters, key)
			n++
		}
	}
	return n
}

// Take removes every waiter and returns them keyed as they were
func (m *Map[T]) Take() map[string]*Waiter[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	taken := m.waiters
	m.waiters = make(map[string]*Waiter[T])
	return taken
}

// WaitSettled waits for every listed key that has a waiter. Rejections are
// ignored; only ctx cancellation is returned.
func (m *Map[T]) WaitSettled(ctx context.Context, keys []string) error {
	pending := make([]*Waiter[T], 0, len(keys))
	for _, key := range keys {
		if w, ok := m.Get(key); ok {
			pending = append(pending, w)
		}
	}

	for _, w := range pending {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
