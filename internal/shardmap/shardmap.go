// Package shardmap implements the fixed-shard concurrent map used to
// attach per-stream and per-file-handle metadata without a single global
// lock becoming a bottleneck across unrelated streams.
package shardmap

import (
	"hash/maphash"
	"sync"
)

// Shards is the fixed shard count.
const Shards = 64

// Map is a 64-shard hash table keyed by K, each shard guarded by its own
// RWMutex. Get takes the shared lock, Set/Unset take the exclusive lock on
// just the owning shard — unrelated keys in other shards never contend.
type Map[K comparable, V any] struct {
	seed   maphash.Seed
	shards [Shards]shard[K, V]
}

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	m := &Map[K, V]{seed: maphash.MakeSeed()}
	for i := range m.shards {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	h := maphash.Comparable(m.seed, key)
	return &m.shards[h%uint64(Shards)]
}

// Get returns the value stored for key and true, or the zero value and
// false if absent. Takes the shard's shared lock.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores value for key, replacing any prior value. Takes the shard's
// exclusive lock.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

// Unset drops the value stored for key, if any. Takes the shard's
// exclusive lock.
func (m *Map[K, V]) Unset(key K) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Len returns the total number of entries across all shards. Intended for
// diagnostics, not for correctness-sensitive code — the count can be stale
// by the time the caller observes it.
func (m *Map[K, V]) Len() int {
	total := 0
	for i := range m.shards {
		m.shards[i].mu.RLock()
		total += len(m.shards[i].m)
		m.shards[i].mu.RUnlock()
	}
	return total
}
