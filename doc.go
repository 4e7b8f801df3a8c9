// Package checkout materializes version-controlled source trees on local
// storage and reuses previously materialized checkouts when it is safe to
// do so.
//
// # Overview
//
// Callers hand the [Loader] a repository reference, intent flags, and an
// action to run against the materialized tree. The loader decides, per
// request, whether to bypass the cache, serve from the cache, or populate
// the cache:
//
//   - Non-read-only requests always receive a fresh checkout. The checkout
//     is never cached and is reclaimed by the cleanup coordinator when the
//     request's scope ends or after an idle timeout.
//   - Read-only requests pinned to an exact commit hash are cacheable: a
//     tree at an exact commit is immutable, so it can be served to any later
//     request with equal clone options.
//   - Read-only requests naming a branch or tag are not cacheable: the ref
//     may move, and caching under it would silently serve outdated content.
//
// # Usage
//
// Construct a coordinator and a loader at the composition root:
//
//	coordinator := cleanup.New()
//	defer coordinator.FlushAll(context.Background())
//
//	materializer, err := gitsource.New("/var/cache/checkouts")
//	if err != nil {
//	    return err
//	}
//
//	loader, err := checkout.NewLoader(materializer, coordinator)
//	if err != nil {
//	    return err
//	}
//
//	result, err := checkout.WithProject(ctx, loader, checkout.LoadParams{
//	    Ref:      checkout.RepoRef{URL: "https://github.com/my/repo", Revision: hash},
//	    ReadOnly: true,
//	}, func(ctx context.Context, co checkout.Checkout) (string, error) {
//	    return inspect(co.Path)
//	})
//
// # Ownership
//
// Every materialized checkout is owned by exactly one component at a time:
// the cache store (read-only, exact-hash requests) or the lifecycle
// coordinator (everything else). Each checkout is deleted from storage
// exactly once, by exactly one reclamation path: cache eviction, scoped
// disposal, idle timeout, or shutdown flush.
//
// A cached entry may be evicted by capacity pressure while another request's
// action is still reading from it. The loader resolves this race with a
// per-entry reference count: reclamation of an in-use entry is deferred
// until the last action using it completes.
package checkout
