// Package store provides a bounded, concurrency-safe associative store with
// LRU eviction and a per-entry eviction callback.
//
// The store is generic over an opaque entry type: the eviction policy stays
// independent of what releasing an entry's backing resources means. Callers
// inject the release behavior via [WithOnEvict].
package store

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmgilman/go/errors"
)

// DefaultCapacity is the bound applied when no capacity is configured.
const DefaultCapacity = 20

// Store is a bounded associative store. When an insertion would exceed
// capacity, the least-recently-used entry (by Get/Put access order) is
// evicted and the eviction callback is invoked for it.
//
// All methods are safe for concurrent use. Concurrent Gets for the same key
// return a consistent snapshot; entries are never observed partially
// written.
type Store[K comparable, V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[K, V]
	onGet func(value V) // set at construction, never mutated afterwards

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Stats is a read-only snapshot of store counters, exposed for diagnostics
// only. It is not part of the correctness contract.
type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// Option configures store construction.
type Option[K comparable, V any] func(*options[K, V])

type options[K comparable, V any] struct {
	capacity int
	onEvict  func(key K, value V)
	onGet    func(value V)
}

// WithCapacity bounds the store at n entries. Defaults to
// [DefaultCapacity].
func WithCapacity[K comparable, V any](n int) Option[K, V] {
	return func(o *options[K, V]) {
		o.capacity = n
	}
}

// WithOnEvict registers a callback invoked for every entry removed from the
// store, whether by capacity pressure, explicit [Store.Evict], or
// replacement by [Store.Put]. Its job is to release the entry's backing
// resources.
//
// The callback runs while the store's lock is held: it must not call back
// into the store, and slow work (filesystem removal, network I/O) must be
// dispatched to another goroutine. The store does not retry a failed
// release.
func WithOnEvict[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(o *options[K, V]) {
		o.onEvict = fn
	}
}

// WithOnGet registers a hook invoked under the store's lock for every value
// returned by [Store.Get]. It allows callers to pin an entry (for example,
// take a reference) atomically with the lookup, before any concurrent
// eviction of the same key can observe it unpinned.
func WithOnGet[K comparable, V any](fn func(value V)) Option[K, V] {
	return func(o *options[K, V]) {
		o.onGet = fn
	}
}

// New creates a bounded store. Capacity must be positive.
func New[K comparable, V any](opts ...Option[K, V]) (*Store[K, V], error) {
	options := &options[K, V]{
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.capacity <= 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "store capacity must be positive, got %d", options.capacity)
	}

	inner, err := lru.NewWithEvict(options.capacity, options.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to create LRU cache")
	}

	return &Store[K, V]{lru: inner, onGet: options.onGet}, nil
}

// Get returns the entry for key, marking it most recently used.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.lru.Get(key)
	if !ok {
		s.misses.Add(1)
		var zero V
		return zero, false
	}

	s.hits.Add(1)
	if s.onGet != nil {
		s.onGet(v)
	}
	return v, true
}

// Put inserts or replaces the entry for key, marking it most recently used.
// Replacing an existing entry invokes the eviction callback for the old
// value; inserting at capacity invokes it for the LRU victim.
func (s *Store[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// golang-lru replaces values silently; evict the old value explicitly
	// so its resources are released exactly once.
	if _, ok := s.lru.Peek(key); ok {
		s.lru.Remove(key)
	}
	s.lru.Add(key, value)
}

// Evict removes the entry for key, invoking the eviction callback.
// Evicting an absent key is a no-op and returns false.
func (s *Store[K, V]) Evict(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Remove(key)
}

// Len returns the current number of entries.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Stats returns a snapshot of the store's counters.
func (s *Store[K, V]) Stats() Stats {
	return Stats{
		Size:   s.Len(),
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
}
