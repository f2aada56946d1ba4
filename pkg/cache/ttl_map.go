package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLMap is a small mutex-guarded map whose entries expire. Expired entries
// are dropped lazily on read.
type TTLMap[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]item[V]
}

func NewTTLMap[K comparable, V any]() *TTLMap[K, V] {
	return &TTLMap[K, V]{items: map[K]item[V]{}}
}

func (m *TTLMap[K, V]) Get(key K, now time.Time) (V, bool) {
	var zero V
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return zero, false
	}
	if !now.Before(it.expiresAt) {
		delete(m.items, key)
		return zero, false
	}
	return it.value, true
}

func (m *TTLMap[K, V]) Set(key K, value V, now time.Time, ttl time.Duration) {
	m.mu.Lock()
	m.items[key] = item[V]{value: value, expiresAt: now.Add(ttl)}
	m.mu.Unlock()
}
