package checkout

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// RepoRef identifies a repository plus a revision designator. The revision
// is either an exact commit hash (immutable, cacheable) or a mutable ref
// name such as a branch or tag (never cached). Immutable once constructed.
type RepoRef struct {
	// URL is the repository location. Equivalent spellings (trailing slash,
	// .git suffix, SSH vs HTTPS) normalize to the same cache identity.
	URL string

	// Revision is the commit hash or ref name to materialize. Empty means
	// the repository's default branch.
	Revision string
}

// CloneOptions configures how a checkout is materialized. A cached checkout
// is only served to requests whose options are deeply equal to the ones
// it was created with.
type CloneOptions struct {
	// Depth limits history depth; 0 performs a full clone.
	Depth int

	// SingleBranch limits the clone to the requested ref's branch.
	SingleBranch bool

	// Auth authenticates network operations. Satisfied by go-git's
	// transport auth methods.
	Auth transport.AuthMethod
}

// Checkout is a materialized source tree: an on-disk directory plus the
// repository identity it was produced from.
type Checkout struct {
	// Path is the checkout's working tree directory.
	Path string

	// Ref is the reference the checkout was materialized from.
	Ref RepoRef
}

// Materializer produces checkouts. Implementations must return a checkout
// whose content matches the requested revision, or an error if the
// clone/fetch/checkout fails. The loader propagates materialization errors
// to the caller unchanged and never retries them.
//
// The gitsource subpackage provides the default go-git implementation.
type Materializer interface {
	Materialize(ctx context.Context, ref RepoRef, opts CloneOptions) (Checkout, error)
}

// Lifecycle is a request-scoped disposal handle supplied by the caller.
// Disposal functions registered with it are invoked by the handle's owner
// when the request's scope ends.
type Lifecycle interface {
	RegisterDisposable(dispose func())
}

// LoadParams carries a single load request. Parameters are provided fresh
// per request; the loader never mutates them.
type LoadParams struct {
	// Ref is the repository and revision to materialize.
	Ref RepoRef

	// ReadOnly declares that the action will not mutate the checkout.
	// Only read-only requests pinned to an exact commit hash are cacheable.
	ReadOnly bool

	// Options configures the clone that backs the checkout.
	Options CloneOptions

	// Lifecycle, when non-nil, scopes a bypass-path checkout to the
	// request: its registered disposal reclaims the tree at scope end
	// instead of the idle timeout.
	Lifecycle Lifecycle
}
