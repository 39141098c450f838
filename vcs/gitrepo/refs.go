// This file contains reference resolution and manipulation.
package gitrepo

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/mdanatg/copybara/vcs"
)

// ResolveReference resolves a branch name, full reference name or revision
// expression to a revision. Returns vcs.ErrRefNotFound when nothing by that
// name exists.
func (r *Repo) ResolveReference(ctx context.Context, name string) (*vcs.Revision, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, vcs.WrapErrorf(vcs.ErrRefNotFound, "reference %q", name)
		}
		return nil, vcs.WrapErrorf(err, "failed to resolve %q", name)
	}
	return &vcs.Revision{SHA: hash.String(), Ref: name}, nil
}

// RefExists reports whether the name resolves to a commit.
func (r *Repo) RefExists(ctx context.Context, name string) (bool, error) {
	_, err := r.ResolveReference(ctx, name)
	if err != nil {
		if errors.Is(err, vcs.ErrRefNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateRef points the named reference at the target revision, creating it
// if necessary.
func (r *Repo) UpdateRef(ctx context.Context, name, target string) error {
	rev, err := r.ResolveReference(ctx, target)
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(branchRefName(name), plumbing.NewHash(rev.SHA))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return vcs.WrapErrorf(err, "failed to update ref %q to %s", name, rev.SHA)
	}
	return nil
}

// SetSymbolicHead points HEAD at a branch that may not exist yet, so the
// next commit starts a brand-new history on that branch.
func (r *Repo) SetSymbolicHead(ctx context.Context, branch string) error {
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, branchRefName(branch))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return vcs.WrapErrorf(err, "failed to point HEAD at branch %q", branch)
	}
	return nil
}

// branchRefName qualifies a short branch name, leaving already-qualified
// reference names untouched.
func branchRefName(name string) plumbing.ReferenceName {
	if strings.HasPrefix(name, "refs/") || name == "HEAD" {
		return plumbing.ReferenceName(name)
	}
	return plumbing.NewBranchReferenceName(name)
}
