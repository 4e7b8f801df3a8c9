package checkout

import (
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// Key is a cache key derived only from immutable identity: the normalized
// repository URL plus an exact commit hash. Keys are comparable values; two
// requests for the same repository and commit produce equal keys.
type Key struct {
	Repo string
	Hash string
}

// KeyFor derives the cache key for a reference. It returns ok=false when
// the revision is not a syntactically valid exact commit hash, signaling
// that the request must not be cached: a branch or tag name is mutable and
// would silently serve outdated content after the ref moves.
func KeyFor(ref RepoRef) (Key, bool) {
	if !plumbing.IsHash(ref.Revision) {
		return Key{}, false
	}
	return Key{
		Repo: NormalizeURL(ref.URL),
		Hash: strings.ToLower(ref.Revision),
	}, true
}

// NormalizeURL normalizes a repository URL to a consistent filesystem-safe
// identity so that equivalent spellings share a cache key and a storage
// directory.
//
// Normalization rules:
//  1. Strip a .git suffix
//  2. Convert SSH URLs (git@host:path) to host/path
//  3. Convert HTTP(S) URLs to host/path
//  4. Remove trailing slashes
//
// Examples:
//   - https://github.com/my/repo.git → github.com/my/repo
//   - git@github.com:my/repo → github.com/my/repo
//   - http://gitlab.com/org/project → gitlab.com/org/project
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSuffix(rawURL, ".git")

	// SSH form: user@host:path
	if strings.Contains(rawURL, "@") && strings.Contains(rawURL, ":") && !strings.Contains(rawURL, "://") {
		parts := strings.SplitN(rawURL, "@", 2)
		if len(parts) == 2 {
			hostPath := strings.Replace(parts[1], ":", "/", 1)
			return strings.TrimSuffix(hostPath, "/")
		}
	}

	parsed, err := url.Parse(rawURL)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		return strings.TrimSuffix(parsed.Host+parsed.Path, "/")
	}

	return strings.TrimSuffix(rawURL, "/")
}
