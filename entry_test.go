package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryReclamation(t *testing.T) {
	t.Run("eviction of an unused entry reclaims immediately", func(t *testing.T) {
		var reclaimed []string
		e := newEntry(Checkout{Path: "/checkouts/a"}, CloneOptions{})

		e.evicted(func(path string) { reclaimed = append(reclaimed, path) })
		assert.Equal(t, []string{"/checkouts/a"}, reclaimed)
	})

	t.Run("eviction of a pinned entry defers to the last release", func(t *testing.T) {
		var reclaimed []string
		reclaim := func(path string) { reclaimed = append(reclaimed, path) }
		e := newEntry(Checkout{Path: "/checkouts/a"}, CloneOptions{})

		e.acquire()
		e.acquire()
		e.evicted(reclaim)
		assert.Empty(t, reclaimed)

		e.release(reclaim)
		assert.Empty(t, reclaimed)

		e.release(reclaim)
		assert.Equal(t, []string{"/checkouts/a"}, reclaimed)
	})

	t.Run("release without eviction never reclaims", func(t *testing.T) {
		var reclaimed []string
		reclaim := func(path string) { reclaimed = append(reclaimed, path) }
		e := newEntry(Checkout{Path: "/checkouts/a"}, CloneOptions{})

		e.acquire()
		e.release(reclaim)
		assert.Empty(t, reclaimed)
	})
}
