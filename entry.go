package checkout

import "sync"

// entry is a cached checkout plus the clone options that produced it.
// From insertion until eviction the cache store owns the entry exclusively;
// no other component may delete its backing storage.
//
// The reference count resolves the race between an in-flight action and a
// concurrent eviction of the same key: eviction of an entry that is still
// in use marks it doomed instead of reclaiming it, and the last release
// performs the reclamation.
type entry struct {
	checkout Checkout
	options  CloneOptions

	mu     sync.Mutex
	refs   int
	doomed bool
}

func newEntry(co Checkout, opts CloneOptions) *entry {
	return &entry{checkout: co, options: opts}
}

// acquire pins the entry's storage for the duration of an action.
func (e *entry) acquire() {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
}

// release unpins the entry. If the entry was evicted while pinned, the last
// release reclaims its storage.
func (e *entry) release(reclaim func(path string)) {
	e.mu.Lock()
	e.refs--
	last := e.doomed && e.refs == 0
	e.mu.Unlock()

	if last {
		reclaim(e.checkout.Path)
	}
}

// evicted is called once when the store drops the entry. Storage is
// reclaimed immediately unless an action is still reading from it, in which
// case reclamation is deferred to the final release.
func (e *entry) evicted(reclaim func(path string)) {
	e.mu.Lock()
	e.doomed = true
	inUse := e.refs > 0
	e.mu.Unlock()

	if !inUse {
		reclaim(e.checkout.Path)
	}
}
