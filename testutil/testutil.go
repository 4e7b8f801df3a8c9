// Package testutil provides in-memory repository fixtures for testing the
// checkout loader and the gitsource materializer without network access.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Test author information used across all fixtures.
const (
	TestAuthor = "Test User"
	TestEmail  = "test@example.com"
)

// TestRepoURL is a sample HTTPS repository URL for testing.
const TestRepoURL = "https://github.com/test/repo.git"

// commitTime is a fixed author timestamp so fixture commit hashes are
// stable across repeated clones of the same fixture.
var commitTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// InitRepo initializes a repository whose .git storage and working tree
// both live on the provided filesystem, matching the layout the
// materializer produces.
func InitRepo(fs billy.Filesystem) (*gogit.Repository, error) {
	dotGit, err := fs.Chroot(gogit.GitDirName)
	if err != nil {
		return nil, err
	}
	storer := filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault())
	return gogit.Init(storer, fs)
}

// InitRepoAt initializes a repository rooted at the given storer and
// worktree, the shapes a Cloner implementation receives.
func InitRepoAt(s storage.Storer, worktree billy.Filesystem) (*gogit.Repository, error) {
	return gogit.Init(s, worktree)
}

// WriteFile creates or truncates a file with the given content on the
// filesystem, creating parent directories as needed.
func WriteFile(fs billy.Filesystem, path, content string) error {
	file, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}

// CommitFile writes a file into the repository's working tree and commits
// it, returning the commit hash.
func CommitFile(repo *gogit.Repository, fs billy.Filesystem, path, content, message string) (plumbing.Hash, error) {
	if err := WriteFile(fs, path, content); err != nil {
		return plumbing.ZeroHash, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := wt.Add(path); err != nil {
		return plumbing.ZeroHash, err
	}

	return wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  TestAuthor,
			Email: TestEmail,
			When:  commitTime,
		},
	})
}

// CreateTag creates a lightweight tag pointing at the given commit.
func CreateTag(repo *gogit.Repository, name string, hash plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), hash)
	return repo.Storer.SetReference(ref)
}

// CreateBranch creates a branch pointing at the given commit.
func CreateBranch(repo *gogit.Repository, name string, hash plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	return repo.Storer.SetReference(ref)
}

// FixtureCloner satisfies gitsource.Cloner by building a deterministic
// repository in place instead of reaching the network: two commits on the
// default branch, a "dev" branch and a "v1.0.0" tag pinned at the first
// commit.
type FixtureCloner struct {
	// Err, when set, fails every clone.
	Err error

	mu     sync.Mutex
	calls  int
	first  plumbing.Hash
	second plumbing.Hash
}

// Clone implements the materializer's clone contract.
func (f *FixtureCloner) Clone(_ context.Context, s storage.Storer, worktree billy.Filesystem, _ *gogit.CloneOptions) (*gogit.Repository, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	repo, err := InitRepoAt(s, worktree)
	if err != nil {
		return nil, err
	}

	first, err := CommitFile(repo, worktree, "README.md", "v1\n", "Initial commit")
	if err != nil {
		return nil, err
	}
	second, err := CommitFile(repo, worktree, "README.md", "v2\n", "Update README")
	if err != nil {
		return nil, err
	}

	if err := CreateBranch(repo, "dev", first); err != nil {
		return nil, err
	}
	if err := CreateTag(repo, "v1.0.0", first); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.first, f.second = first, second
	f.mu.Unlock()
	return repo, nil
}

// Calls reports how many clones were attempted.
func (f *FixtureCloner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FirstCommit returns the hash of the fixture's first commit.
func (f *FixtureCloner) FirstCommit() plumbing.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.first
}

// SecondCommit returns the hash of the fixture's second commit.
func (f *FixtureCloner) SecondCommit() plumbing.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.second
}
