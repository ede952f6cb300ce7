package registry

import "sync"

// Store is a keyed store with get/set/delete semantics.
// Implementations must be safe for concurrent use.
type Store[K comparable, V any] interface {
	// Get returns the value for key and whether it exists.
	Get(key K) (V, bool)

	// Set stores value under key, replacing any previous value.
	Set(key K, value V)

	// Delete removes key. It reports whether the key was present.
	Delete(key K) bool

	// Has reports whether key exists.
	Has(key K) bool

	// GetOrCreate returns the value for key, storing factory() first if absent.
	GetOrCreate(key K, factory func() V) V

	// Keys returns all keys in unspecified order.
	Keys() []K

	// Len returns the number of entries.
	Len() int

	// Range calls fn for each entry of a snapshot until fn returns false.
	Range(fn func(K, V) bool)

	// Clear removes every entry.
	Clear()
}

// Memory is an in-memory Store guarded by a sync.RWMutex.
type Memory[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// Compile-time interface check.
var _ Store[string, int] = (*Memory[string, int])(nil)

// NewMemory creates an empty in-memory store.
func NewMemory[K comparable, V any]() *Memory[K, V] {
	return &Memory[K, V]{
		entries: make(map[K]V),
	}
}

// Get implements Store.
func (m *Memory[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

// Set implements Store.
func (m *Memory[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

// Delete implements Store.
func (m *Memory[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok
}

// Has implements Store.
func (m *Memory[K, V]) Has(key K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok
}

// GetOrCreate implements Store.
// The factory is called at most once per key.
func (m *Memory[K, V]) GetOrCreate(key K, factory func() V) V {
	m.mu.RLock()
	v, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another writer may have won the race.
	if v, ok := m.entries[key]; ok {
		return v
	}

	v = factory()
	m.entries[key] = v
	return v
}

// Keys implements Store.
func (m *Memory[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len implements Store.
func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Range implements Store.
func (m *Memory[K, V]) Range(fn func(K, V) bool) {
	m.mu.RLock()
	snapshot := make(map[K]V, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Clear implements Store.
func (m *Memory[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[K]V)
}
