// This file contains the rebase used to linearize migration commits onto the
// real destination history.
package gitrepo

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/mdanatg/copybara/vcs"
)

// Rebase replays the commits unique to HEAD since its merge point with onto,
// oldest first, on top of onto, then moves HEAD (and its branch, when
// attached) to the rebased tip.
//
// Replaying preserves each commit's tree verbatim. Migration commits are
// whole-tree snapshots staged as full replacements, so reparenting them is
// an exact rebase; there is no content merge to perform.
func (r *Repo) Rebase(ctx context.Context, onto string) error {
	ontoRev, err := r.ResolveReference(ctx, onto)
	if err != nil {
		return vcs.WrapErrorf(err, "rebase target %q", onto)
	}
	ontoHash := plumbing.NewHash(ontoRev.SHA)

	head, err := r.repo.Head()
	if err != nil {
		return vcs.WrapError(err, "failed to resolve HEAD for rebase")
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return vcs.WrapErrorf(err, "failed to load HEAD commit %s", head.Hash())
	}
	ontoCommit, err := r.repo.CommitObject(ontoHash)
	if err != nil {
		return vcs.WrapErrorf(err, "failed to load commit %s", ontoHash)
	}

	chain, err := commitsSinceMergeBase(headCommit, ontoCommit)
	if err != nil {
		return err
	}

	tip := ontoHash
	for i := len(chain) - 1; i >= 0; i-- {
		tip, err = r.reparent(chain[i], tip)
		if err != nil {
			return err
		}
	}

	return r.moveHeadTo(ctx, head, tip)
}

// commitsSinceMergeBase returns the first-parent chain from head (inclusive)
// down to, but excluding, the merge base with onto, newest first.
func commitsSinceMergeBase(head, onto *object.Commit) ([]*object.Commit, error) {
	bases, err := head.MergeBase(onto)
	if err != nil {
		return nil, vcs.WrapError(err, "failed to compute merge base for rebase")
	}
	if len(bases) == 0 {
		return nil, vcs.WrapErrorf(vcs.ErrCannotResolve,
			"cannot rebase %s onto %s: histories are unrelated", head.Hash, onto.Hash)
	}
	base := bases[0].Hash

	var chain []*object.Commit
	for c := head; c.Hash != base; {
		chain = append(chain, c)
		if c.NumParents() == 0 {
			return nil, vcs.WrapErrorf(vcs.ErrCannotResolve,
				"cannot rebase: merge base %s not reachable from %s via first parents", base, head.Hash)
		}
		parent, err := c.Parent(0)
		if err != nil {
			return nil, vcs.WrapErrorf(err, "failed to load parent of %s", c.Hash)
		}
		c = parent
	}
	return chain, nil
}

// reparent writes a copy of the commit with the given parent, preserving its
// tree, message and identities, and returns the new hash.
func (r *Repo) reparent(orig *object.Commit, parent plumbing.Hash) (plumbing.Hash, error) {
	rebased := &object.Commit{
		Author:       orig.Author,
		Committer:    orig.Committer,
		Message:      orig.Message,
		TreeHash:     orig.TreeHash,
		ParentHashes: []plumbing.Hash{parent},
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := rebased.Encode(obj); err != nil {
		return plumbing.ZeroHash, vcs.WrapErrorf(err, "failed to encode rebase of %s", orig.Hash)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, vcs.WrapErrorf(err, "failed to store rebase of %s", orig.Hash)
	}
	r.logger.Debug("rebased commit", "from", orig.Hash.String(), "to", hash.String())
	return hash, nil
}

// moveHeadTo points HEAD (or the branch HEAD is attached to) at the rebased
// tip and force-checks it out so the working tree matches.
func (r *Repo) moveHeadTo(ctx context.Context, head *plumbing.Reference, tip plumbing.Hash) error {
	target := plumbing.HEAD
	if head.Name() != plumbing.HEAD {
		target = head.Name()
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(target, tip)); err != nil {
		return vcs.WrapErrorf(err, "failed to move %s to rebased tip %s", target, tip)
	}
	if err := r.worktree.Checkout(&git.CheckoutOptions{Hash: tip, Force: true}); err != nil {
		return vcs.WrapErrorf(err, "failed to checkout rebased tip %s", tip)
	}
	if target != plumbing.HEAD {
		// Checkout by hash detaches HEAD; reattach it to the branch.
		if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, target)); err != nil {
			return vcs.WrapErrorf(err, "failed to reattach HEAD to %s", target)
		}
	}
	return nil
}
