// This file contains remote synchronization (single-ref fetch and push).
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/mdanatg/copybara/vcs"
)

// anonymousRemote builds a transient remote for the given URL. Migrations
// address remotes by URL per call instead of persisting remote configuration.
func (r *Repo) anonymousRemote(remoteURL string) (*git.Remote, error) {
	remote, err := r.repo.CreateRemoteAnonymous(&config.RemoteConfig{
		Name: "anonymous",
		URLs: []string{remoteURL},
	})
	if err != nil {
		return nil, vcs.WrapErrorf(err, "failed to address remote %q", remoteURL)
	}
	return remote, nil
}

// FetchSingleRef fetches one reference from the remote into local storage
// and returns the revision it points at. Short names are tried as a branch
// first, then as a tag. Returns vcs.ErrRefNotFound when the remote does not
// have the reference, or when the remote repository is empty.
func (r *Repo) FetchSingleRef(ctx context.Context, remoteURL, ref string) (*vcs.Revision, error) {
	remote, err := r.anonymousRemote(remoteURL)
	if err != nil {
		return nil, err
	}

	candidates := []string{ref}
	if !strings.HasPrefix(ref, "refs/") {
		candidates = []string{
			plumbing.NewBranchReferenceName(ref).String(),
			plumbing.NewTagReferenceName(ref).String(),
			ref,
		}
	}

	for _, candidate := range candidates {
		r.logger.Debug("fetching single ref", "url", remoteURL, "ref", candidate)
		err = remote.FetchContext(ctx, &git.FetchOptions{
			RefSpecs: []config.RefSpec{config.RefSpec("+" + candidate + ":" + fetchRef)},
			Tags:     git.NoTags,
			Force:    true,
		})
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			fetched, resolveErr := r.repo.Reference(plumbing.ReferenceName(fetchRef), true)
			if resolveErr != nil {
				return nil, vcs.WrapErrorf(resolveErr, "failed to resolve fetched ref %q", ref)
			}
			return &vcs.Revision{SHA: fetched.Hash().String(), Ref: ref}, nil
		}
		if isMissingRemoteRef(err) {
			continue
		}
		return nil, vcs.WrapErrorf(err, "failed to fetch %q from %q", ref, remoteURL)
	}
	return nil, vcs.WrapErrorf(vcs.ErrRefNotFound, "ref %q in %q", ref, remoteURL)
}

// isMissingRemoteRef reports whether a fetch error means the requested
// reference is absent rather than the operation having failed.
func isMissingRemoteRef(err error) bool {
	return errors.Is(err, git.NoMatchingRefSpecError{}) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository)
}

// Push updates the remote according to the refspec `[+]<src>:<dst>` and
// returns a textual server response for result reporting. The `+` prefix
// requests a forced, non-fast-forward update. A `HEAD` source is resolved
// to the underlying branch, or to an internal reference when detached.
func (r *Repo) Push(ctx context.Context, remoteURL, refspec string) (string, error) {
	forced := strings.HasPrefix(refspec, "+")
	src, dst, ok := strings.Cut(strings.TrimPrefix(refspec, "+"), ":")
	if !ok {
		return "", vcs.WrapErrorf(vcs.ErrCannotResolve, "malformed refspec %q", refspec)
	}

	srcRef, err := r.pushSource(ctx, src)
	if err != nil {
		return "", err
	}
	dstRef := branchRefName(dst)

	remote, err := r.anonymousRemote(remoteURL)
	if err != nil {
		return "", err
	}

	spec := config.RefSpec(srcRef.String() + ":" + dstRef.String())
	if forced {
		spec = config.RefSpec("+" + spec)
	}
	r.logger.Debug("pushing", "url", remoteURL, "refspec", spec)

	err = remote.PushContext(ctx, &git.PushOptions{
		RefSpecs: []config.RefSpec{spec},
	})
	switch {
	case err == nil:
		return fmt.Sprintf("To %s\n * %s -> %s\n", remoteURL, src, dst), nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return fmt.Sprintf("To %s\nEverything up-to-date\n", remoteURL), nil
	case errors.Is(err, git.ErrNonFastForwardUpdate) ||
		strings.Contains(err.Error(), "non-fast-forward update"):
		return "", vcs.WrapErrorf(err, "non-fast-forward push of %q to %q rejected", dst, remoteURL)
	default:
		return "", vcs.WrapErrorf(err, "failed to push %q to %q", refspec, remoteURL)
	}
}

// pushSource maps a refspec source to a concrete local reference name.
func (r *Repo) pushSource(ctx context.Context, src string) (plumbing.ReferenceName, error) {
	if src != "HEAD" {
		return branchRefName(src), nil
	}
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", vcs.WrapError(err, "failed to read HEAD")
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target(), nil
	}
	// Detached HEAD: a refspec source must be a named reference, so pin the
	// current commit to an internal one.
	pinned := plumbing.NewHashReference(plumbing.ReferenceName(pushSourceRef), head.Hash())
	if err := r.repo.Storer.SetReference(pinned); err != nil {
		return "", vcs.WrapError(err, "failed to pin detached HEAD for push")
	}
	return pinned.Name(), nil
}
