package checkout

import (
	"context"
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/go/checkout/cleanup"
	"github.com/jmgilman/go/checkout/store"
)

// Loader is the sole entry point for load requests. It routes each request
// to the bypass path, serves it from the cache, or populates the cache, and
// runs the caller's action against the resolved checkout.
type Loader struct {
	materializer Materializer
	coordinator  *cleanup.Coordinator
	cache        *store.Store[Key, *entry]
	fs           billy.Filesystem
	log          *slog.Logger
}

// LoaderOption configures loader construction.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	fs       billy.Filesystem
	log      *slog.Logger
	capacity int
}

// WithFilesystem sets the billy filesystem used for validity checks.
// Defaults to the local filesystem rooted at /. Provide the same filesystem
// to the coordinator and the materializer; the loader never resolves paths
// across filesystems.
func WithFilesystem(fs billy.Filesystem) LoaderOption {
	return func(o *loaderOptions) {
		o.fs = fs
	}
}

// WithLogger sets the logger for cache diagnostics.
func WithLogger(log *slog.Logger) LoaderOption {
	return func(o *loaderOptions) {
		o.log = log
	}
}

// WithCapacity bounds the number of cached checkouts. Defaults to
// [store.DefaultCapacity].
func WithCapacity(n int) LoaderOption {
	return func(o *loaderOptions) {
		o.capacity = n
	}
}

// NewLoader creates a loader. The materializer produces checkouts; the
// coordinator owns reclamation of every checkout the cache store does not.
func NewLoader(m Materializer, coordinator *cleanup.Coordinator, opts ...LoaderOption) (*Loader, error) {
	options := &loaderOptions{
		fs:       osfs.New("/"),
		log:      slog.New(slog.DiscardHandler),
		capacity: store.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(options)
	}

	l := &Loader{
		materializer: m,
		coordinator:  coordinator,
		fs:           options.fs,
		log:          options.log,
	}

	cache, err := store.New(
		store.WithCapacity[Key, *entry](options.capacity),
		// Eviction runs under the store lock; reclamation does filesystem
		// I/O, so it is dispatched asynchronously from the request that
		// triggered the eviction.
		store.WithOnEvict[Key](func(key Key, e *entry) {
			go e.evicted(l.reclaim)
		}),
		// Pin the entry atomically with the lookup so an eviction racing
		// the Get can never reclaim a checkout the action is about to use.
		store.WithOnGet[Key](func(e *entry) {
			e.acquire()
		}),
	)
	if err != nil {
		return nil, err
	}
	l.cache = cache

	return l, nil
}

// WithProject resolves a checkout for params and runs action against it,
// returning the action's result.
//
// Decision procedure, in order:
//  1. Non-read-only requests bypass the cache: a fresh checkout is
//     materialized and registered with the lifecycle coordinator.
//  2. Read-only requests whose revision is not an exact commit hash take
//     the same bypass path.
//  3. Otherwise the content key is computed; a valid cached entry is
//     reused, an invalid one is evicted and refetched, and a miss is
//     materialized and stored. The cache store is then the checkout's sole
//     owner.
//
// The resolved checkout exists and matches the requested revision at the
// moment action is invoked. Materialization errors and errors from action
// propagate to the caller unchanged; cache-management errors are absorbed
// and logged.
func WithProject[T any](ctx context.Context, l *Loader, params LoadParams, action func(ctx context.Context, co Checkout) (T, error)) (T, error) {
	var zero T

	key, cacheable := KeyFor(params.Ref)
	if !params.ReadOnly || !cacheable {
		co, err := l.materializer.Materialize(ctx, params.Ref, params.Options)
		if err != nil {
			return zero, err
		}
		l.track(params, co)
		return action(ctx, co)
	}

	e, ok := l.cache.Get(key)
	if ok && !l.isValid(e, params) {
		l.log.Debug("evicting stale cache entry", "repo", key.Repo, "hash", key.Hash)
		// Get pinned the entry; unpin before evicting so reclamation is
		// not deferred on our own account.
		e.release(l.reclaim)
		l.cache.Evict(key)
		ok = false
	}

	if !ok {
		co, err := l.materializer.Materialize(ctx, params.Ref, params.Options)
		if err != nil {
			return zero, err
		}
		e = newEntry(co, params.Options)
		e.acquire()
		l.cache.Put(key, e)
	}

	defer e.release(l.reclaim)
	return action(ctx, e.checkout)
}

// Run is the non-generic form of [WithProject] for actions without a
// result.
func (l *Loader) Run(ctx context.Context, params LoadParams, action func(ctx context.Context, co Checkout) error) error {
	_, err := WithProject(ctx, l, params, func(ctx context.Context, co Checkout) (struct{}, error) {
		return struct{}{}, action(ctx, co)
	})
	return err
}

// Stats returns read-only cache statistics for diagnostics.
func (l *Loader) Stats() store.Stats {
	return l.cache.Stats()
}

// track hands a bypass-path checkout to the lifecycle coordinator. With a
// request-scoped lifecycle handle the checkout is reclaimed at scope end;
// without one it is reclaimed after the idle timeout, and recorded as
// pending in case shutdown occurs first.
func (l *Loader) track(params LoadParams, co Checkout) {
	if params.Lifecycle != nil {
		params.Lifecycle.RegisterDisposable(func() {
			l.coordinator.Reclaim(co.Path)
		})
		return
	}
	l.coordinator.ScheduleIdle(co.Path)
}

// reclaim releases a checkout's storage through the coordinator, which
// also clears any pending-deletion bookkeeping for the path.
func (l *Loader) reclaim(path string) {
	l.coordinator.Reclaim(path)
}
