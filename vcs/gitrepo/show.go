// This file renders the commit at HEAD as unified diff text, shown to the
// user by the confirmation gate before pushing.
package gitrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/mdanatg/copybara/vcs"
)

// ShowHead returns the HEAD commit's header and unified diff against its
// first parent. A parentless HEAD is diffed against the empty tree.
func (r *Repo) ShowHead(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", vcs.WrapError(err, "failed to resolve HEAD")
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", vcs.WrapErrorf(err, "failed to load commit %s", head.Hash())
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", vcs.WrapErrorf(err, "failed to load tree of %s", commit.Hash)
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return "", vcs.WrapErrorf(err, "failed to load parent of %s", commit.Hash)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return "", vcs.WrapErrorf(err, "failed to load parent tree of %s", commit.Hash)
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return "", vcs.WrapErrorf(err, "failed to diff %s against its parent", commit.Hash)
	}
	patch, err := changes.Patch()
	if err != nil {
		return "", vcs.WrapError(err, "failed to generate patch")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "commit %s\n", commit.Hash)
	fmt.Fprintf(&b, "Author: %s <%s>\n", commit.Author.Name, commit.Author.Email)
	fmt.Fprintf(&b, "Date:   %s\n\n", commit.Author.When.Format("Mon Jan 2 15:04:05 2006 -0700"))
	for _, line := range strings.Split(strings.TrimRight(commit.Message, "\n"), "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	b.WriteString("\n")
	b.WriteString(patch.String())
	return b.String(), nil
}
