package gitsource

import (
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	gogit "github.com/go-git/go-git/v5"
	gitcache "github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/jmgilman/go/checkout"
	"github.com/jmgilman/go/checkout/testutil"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaterializer(t *testing.T) (*Materializer, *testutil.FixtureCloner, billy.Filesystem) {
	t.Helper()

	fs := memfs.New()
	cloner := &testutil.FixtureCloner{}
	m, err := New("/checkouts", WithFilesystem(fs), WithCloner(cloner))
	require.NoError(t, err)
	return m, cloner, fs
}

func readFile(t *testing.T, fs billy.Filesystem, path string) string {
	t.Helper()

	file, err := fs.Open(path)
	require.NoError(t, err)
	defer file.Close()

	buf := make([]byte, 64)
	n, _ := file.Read(buf)
	return string(buf[:n])
}

// openExisting opens the repository the materializer produced, with its
// .git storage and working tree on the scoped filesystem.
func openExisting(fs billy.Filesystem) (*gogit.Repository, error) {
	dotGit, err := fs.Chroot(gogit.GitDirName)
	if err != nil {
		return nil, err
	}
	storer := filesystem.NewStorage(dotGit, gitcache.NewObjectLRUDefault())
	return gogit.Open(storer, fs)
}

func TestMaterialize(t *testing.T) {
	ref := checkout.RepoRef{URL: testutil.TestRepoURL}

	t.Run("default branch", func(t *testing.T) {
		m, _, fs := newTestMaterializer(t)

		co, err := m.Materialize(context.Background(), ref, checkout.CloneOptions{})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(co.Path, "/checkouts/github.com/test/repo/"))
		assert.Equal(t, "v2\n", readFile(t, fs, co.Path+"/README.md"))
	})

	t.Run("exact commit hash", func(t *testing.T) {
		m, cloner, fs := newTestMaterializer(t)

		// Learn the fixture's first commit hash.
		warmup, err := m.Materialize(context.Background(), ref, checkout.CloneOptions{})
		require.NoError(t, err)

		pinned := ref
		pinned.Revision = cloner.FirstCommit().String()
		co, err := m.Materialize(context.Background(), pinned, checkout.CloneOptions{})
		require.NoError(t, err)

		assert.NotEqual(t, warmup.Path, co.Path)
		assert.Equal(t, "v1\n", readFile(t, fs, co.Path+"/README.md"))

		repo, err := openExisting(mustChroot(t, fs, co.Path))
		require.NoError(t, err)
		head, err := repo.Head()
		require.NoError(t, err)
		assert.Equal(t, cloner.FirstCommit(), head.Hash())
	})

	t.Run("branch revision", func(t *testing.T) {
		m, cloner, fs := newTestMaterializer(t)

		branched := ref
		branched.Revision = "dev"
		co, err := m.Materialize(context.Background(), branched, checkout.CloneOptions{})
		require.NoError(t, err)

		assert.Equal(t, "v1\n", readFile(t, fs, co.Path+"/README.md"))

		repo, err := openExisting(mustChroot(t, fs, co.Path))
		require.NoError(t, err)
		head, err := repo.Head()
		require.NoError(t, err)
		assert.Equal(t, cloner.FirstCommit(), head.Hash())
	})

	t.Run("tag revision", func(t *testing.T) {
		m, _, fs := newTestMaterializer(t)

		tagged := ref
		tagged.Revision = "v1.0.0"
		co, err := m.Materialize(context.Background(), tagged, checkout.CloneOptions{})
		require.NoError(t, err)

		assert.Equal(t, "v1\n", readFile(t, fs, co.Path+"/README.md"))
	})

	t.Run("produces a fresh directory per request", func(t *testing.T) {
		m, _, _ := newTestMaterializer(t)

		a, err := m.Materialize(context.Background(), ref, checkout.CloneOptions{})
		require.NoError(t, err)
		b, err := m.Materialize(context.Background(), ref, checkout.CloneOptions{})
		require.NoError(t, err)

		assert.NotEqual(t, a.Path, b.Path)
	})

	t.Run("unknown revision fails and removes the partial checkout", func(t *testing.T) {
		m, _, fs := newTestMaterializer(t)

		missing := ref
		missing.Revision = "does-not-exist"
		_, err := m.Materialize(context.Background(), missing, checkout.CloneOptions{})
		require.Error(t, err)

		entries, readErr := fs.ReadDir("/checkouts/github.com/test/repo")
		if readErr == nil {
			assert.Empty(t, entries)
		}
	})

	t.Run("clone failure is classified and cleaned up", func(t *testing.T) {
		m, cloner, fs := newTestMaterializer(t)
		cloner.Err = transport.ErrRepositoryNotFound

		_, err := m.Materialize(context.Background(), ref, checkout.CloneOptions{})
		require.Error(t, err)
		assert.Equal(t, platformerrors.CodeNotFound, platformerrors.GetCode(err))

		entries, readErr := fs.ReadDir("/checkouts/github.com/test/repo")
		if readErr == nil {
			assert.Empty(t, entries)
		}
	})
}

func mustChroot(t *testing.T, fs billy.Filesystem, path string) billy.Filesystem {
	t.Helper()
	scoped, err := fs.Chroot(path)
	require.NoError(t, err)
	return scoped
}
