package gitsource

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	platformerrors "github.com/jmgilman/go/errors"
)

// wrapError classifies a go-git error to a platform error type and wraps it
// with context, preserving the chain for errors.Is/errors.As. Returns nil
// for a nil error.
func wrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, classifyError(err))
}

func wrapErrorf(err error, format string, args ...any) error {
	return wrapError(err, fmt.Sprintf(format, args...))
}

// newMismatchError reports a checkout whose content does not match the
// requested revision. Treated as a materialization failure.
func newMismatchError(requested, actual string) error {
	return platformerrors.Newf(platformerrors.CodeExecutionFailed,
		"checkout HEAD %s does not match requested revision %s", actual, requested)
}

// isReferenceNotFound reports whether a clone failed because the requested
// reference does not exist on the remote.
func isReferenceNotFound(err error) bool {
	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, gogit.NoMatchingRefSpecError{})
}

// classifyError maps go-git errors to platform error types. Unknown errors
// pass through unchanged to preserve their original information.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, transport.ErrRepositoryNotFound) {
		return platformerrors.New(platformerrors.CodeNotFound, "repository not found")
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return platformerrors.New(platformerrors.CodeNotFound, "reference not found")
	}
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return platformerrors.New(platformerrors.CodeNotFound, "remote repository is empty")
	}
	if errors.Is(err, transport.ErrAuthenticationRequired) {
		return platformerrors.New(platformerrors.CodeUnauthorized, "authentication required")
	}
	if errors.Is(err, transport.ErrAuthorizationFailed) {
		return platformerrors.New(platformerrors.CodeUnauthorized, "authorization failed")
	}
	if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
		return platformerrors.New(platformerrors.CodeAlreadyExists, "repository already exists")
	}

	return err
}
