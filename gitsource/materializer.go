// Package gitsource materializes checkouts with go-git.
//
// It is the default [checkout.Materializer]: each request clones the remote
// into a fresh directory under a base path, laid out as
// <base>/<normalized-url>/<uuid>, and checks out the requested revision.
// The package never reuses or deletes directories; ownership of the
// produced tree passes to the caller (the loader's cache store or lifecycle
// coordinator).
package gitsource

import (
	"context"
	"log/slog"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gitcache "github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/google/uuid"
	"github.com/jmgilman/go/checkout"
)

// Cloner performs the network clone. The default implementation delegates
// to go-git; tests inject an implementation that builds a repository in
// place without network access.
type Cloner interface {
	Clone(ctx context.Context, s storage.Storer, worktree billy.Filesystem, opts *gogit.CloneOptions) (*gogit.Repository, error)
}

type goGitCloner struct{}

func (goGitCloner) Clone(ctx context.Context, s storage.Storer, worktree billy.Filesystem, opts *gogit.CloneOptions) (*gogit.Repository, error) {
	return gogit.CloneContext(ctx, s, worktree, opts)
}

// Materializer produces checkouts by cloning with go-git.
type Materializer struct {
	fs     billy.Filesystem
	base   string
	log    *slog.Logger
	cloner Cloner
}

// Option configures materializer construction.
type Option func(*Materializer)

// WithFilesystem sets the billy filesystem checkouts are written to.
// Defaults to the local filesystem rooted at /.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(m *Materializer) {
		m.fs = fs
	}
}

// WithLogger sets the logger for clone diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(m *Materializer) {
		m.log = log
	}
}

// WithCloner sets the clone implementation. Primarily useful for testing.
func WithCloner(c Cloner) Option {
	return func(m *Materializer) {
		m.cloner = c
	}
}

// New creates a materializer that writes checkouts under base.
func New(base string, opts ...Option) (*Materializer, error) {
	m := &Materializer{
		fs:     osfs.New("/"),
		base:   base,
		log:    slog.New(slog.DiscardHandler),
		cloner: goGitCloner{},
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.fs.MkdirAll(base, 0o755); err != nil {
		return nil, wrapError(err, "failed to create checkout base directory")
	}
	return m, nil
}

// Materialize clones the repository into a fresh directory and checks out
// the requested revision. The returned checkout's content matches the
// revision; a partially created directory is removed before the error is
// returned.
func (m *Materializer) Materialize(ctx context.Context, ref checkout.RepoRef, opts checkout.CloneOptions) (checkout.Checkout, error) {
	dir := path.Join(m.base, checkout.NormalizeURL(ref.URL), uuid.NewString())

	co, err := m.materializeInto(ctx, dir, ref, opts)
	if err != nil {
		m.discard(dir)
		return checkout.Checkout{}, err
	}

	m.log.Debug("materialized checkout", "url", ref.URL, "revision", ref.Revision, "path", dir)
	return co, nil
}

func (m *Materializer) materializeInto(ctx context.Context, dir string, ref checkout.RepoRef, opts checkout.CloneOptions) (checkout.Checkout, error) {
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return checkout.Checkout{}, wrapError(err, "failed to create checkout directory")
	}

	scoped, err := m.fs.Chroot(dir)
	if err != nil {
		return checkout.Checkout{}, wrapError(err, "failed to scope filesystem to checkout")
	}
	dotGit, err := scoped.Chroot(gogit.GitDirName)
	if err != nil {
		return checkout.Checkout{}, wrapError(err, "failed to create .git filesystem")
	}
	storer := filesystem.NewStorage(dotGit, gitcache.NewObjectLRUDefault())

	repo, err := m.clone(ctx, storer, scoped, ref, opts)
	if err != nil {
		return checkout.Checkout{}, wrapError(err, "failed to clone repository")
	}

	if ref.Revision != "" {
		if err := m.checkoutRevision(repo, ref.Revision); err != nil {
			return checkout.Checkout{}, err
		}
	}

	return checkout.Checkout{Path: dir, Ref: ref}, nil
}

// clone fetches the repository. When the revision names a branch the clone
// is pinned to it (honoring SingleBranch); a revision that turns out to be
// a tag or otherwise unresolvable as a branch falls back to a default clone
// and is resolved locally afterwards.
func (m *Materializer) clone(ctx context.Context, storer storage.Storer, worktree billy.Filesystem, ref checkout.RepoRef, opts checkout.CloneOptions) (*gogit.Repository, error) {
	base := gogit.CloneOptions{
		URL:  ref.URL,
		Auth: opts.Auth,
	}
	if opts.Depth > 0 {
		base.Depth = opts.Depth
	}

	if ref.Revision != "" && !plumbing.IsHash(ref.Revision) {
		pinned := base
		pinned.ReferenceName = plumbing.NewBranchReferenceName(ref.Revision)
		pinned.SingleBranch = opts.SingleBranch

		repo, err := m.cloner.Clone(ctx, storer, worktree, &pinned)
		if err == nil {
			return repo, nil
		}
		if !isReferenceNotFound(err) {
			return nil, err
		}
		// Not a branch; fall through to a default clone.
	}

	return m.cloner.Clone(ctx, storer, worktree, &base)
}

// checkoutRevision moves the working tree to the requested revision and
// verifies HEAD afterwards.
func (m *Materializer) checkoutRevision(repo *gogit.Repository, revision string) error {
	hash, err := m.resolve(repo, revision)
	if err != nil {
		return wrapErrorf(err, "failed to resolve revision %s", revision)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return wrapError(err, "failed to get worktree")
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return wrapErrorf(err, "failed to checkout revision %s", revision)
	}

	head, err := repo.Head()
	if err != nil {
		return wrapError(err, "failed to read HEAD after checkout")
	}
	if head.Hash() != hash {
		return newMismatchError(revision, head.Hash().String())
	}
	return nil
}

// resolve maps a revision to a commit hash. Branch names that only exist as
// remote-tracking refs after the clone are retried under origin/.
func (m *Materializer) resolve(repo *gogit.Repository, revision string) (plumbing.Hash, error) {
	if plumbing.IsHash(revision) {
		return plumbing.NewHash(revision), nil
	}

	h, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err == nil {
		return *h, nil
	}

	h, remoteErr := repo.ResolveRevision(plumbing.Revision("origin/" + revision))
	if remoteErr == nil {
		return *h, nil
	}
	return plumbing.ZeroHash, err
}

// discard best-effort removes a partially created checkout directory.
func (m *Materializer) discard(dir string) {
	if err := util.RemoveAll(m.fs, dir); err != nil {
		m.log.Warn("failed to remove partial checkout", "path", dir, "error", err)
	}
}
