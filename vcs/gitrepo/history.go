// This file contains history queries (grep/path/limit filtered log).
package gitrepo

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/mdanatg/copybara/vcs"
)

// Log starts a history query at the given revision.
func (r *Repo) Log(startRevision string) *vcs.LogQuery {
	return vcs.NewLogQuery(startRevision, r.runLog)
}

// runLog walks history newest-first from the start revision, applying the
// accumulated grep, first-parent, path and limit options.
func (r *Repo) runLog(ctx context.Context, opts vcs.LogOptions) ([]vcs.LogEntry, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(opts.Start))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, vcs.WrapErrorf(vcs.ErrCannotResolve, "log start %q", opts.Start)
		}
		return nil, vcs.WrapErrorf(err, "failed to resolve log start %q", opts.Start)
	}

	var grep *regexp.Regexp
	if opts.GrepPattern != "" {
		// Anchors in the pattern apply per line, matching git's grep over
		// commit bodies.
		grep, err = regexp.Compile("(?m)" + opts.GrepPattern)
		if err != nil {
			return nil, vcs.WrapErrorf(err, "invalid grep pattern %q", opts.GrepPattern)
		}
	}

	start, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, vcs.WrapErrorf(err, "failed to load commit %s", hash)
	}

	var entries []vcs.LogEntry
	walk := newHistoryWalk(start, opts.FirstParentOnly)
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		commit := walk.next()
		if commit == nil {
			break
		}
		if grep != nil && !grep.MatchString(commit.Message) {
			continue
		}
		touches, err := commitTouches(commit, opts.Paths)
		if err != nil {
			return nil, err
		}
		if !touches {
			continue
		}
		entries = append(entries, toLogEntry(commit))
		if opts.Limit > 0 && len(entries) == opts.Limit {
			break
		}
	}
	return entries, nil
}

func toLogEntry(c *object.Commit) vcs.LogEntry {
	parents := make([]string, 0, c.NumParents())
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return vcs.LogEntry{
		SHA:     c.Hash.String(),
		Body:    c.Message,
		Parents: parents,
		Author:  vcs.Author{Name: c.Author.Name, Email: c.Author.Email},
		When:    c.Author.When,
	}
}

// historyWalk yields commits newest-first by committer time, either along
// first parents only or across the full commit graph.
type historyWalk struct {
	firstParent bool
	pending     []*object.Commit
	seen        map[plumbing.Hash]bool
}

func newHistoryWalk(start *object.Commit, firstParent bool) *historyWalk {
	return &historyWalk{
		firstParent: firstParent,
		pending:     []*object.Commit{start},
		seen:        map[plumbing.Hash]bool{start.Hash: true},
	}
}

func (w *historyWalk) next() *object.Commit {
	if len(w.pending) == 0 {
		return nil
	}

	// Pop the newest pending commit. Histories visited here are bounded by
	// the caller's limit, so a linear scan is enough.
	newest := 0
	for i, c := range w.pending {
		if c.Committer.When.After(w.pending[newest].Committer.When) {
			newest = i
		}
	}
	commit := w.pending[newest]
	w.pending = append(w.pending[:newest], w.pending[newest+1:]...)

	parents := commit.NumParents()
	if w.firstParent && parents > 1 {
		parents = 1
	}
	for i := 0; i < parents; i++ {
		parent, err := commit.Parent(i)
		if err != nil {
			continue
		}
		if !w.seen[parent.Hash] {
			w.seen[parent.Hash] = true
			w.pending = append(w.pending, parent)
		}
	}
	return commit
}

// commitTouches reports whether the commit changed any path under the given
// roots. An empty roots set matches every commit. Merge commits are compared
// against their first parent.
func commitTouches(c *object.Commit, roots []string) (bool, error) {
	if len(roots) == 0 {
		return true, nil
	}

	tree, err := c.Tree()
	if err != nil {
		return false, vcs.WrapErrorf(err, "failed to load tree of %s", c.Hash)
	}

	if c.NumParents() == 0 {
		found := false
		iterErr := tree.Files().ForEach(func(f *object.File) error {
			if underAnyRoot(f.Name, roots) {
				found = true
				return errStopIteration
			}
			return nil
		})
		if iterErr != nil && !errors.Is(iterErr, errStopIteration) {
			return false, vcs.WrapErrorf(iterErr, "failed to walk tree of %s", c.Hash)
		}
		return found, nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return false, vcs.WrapErrorf(err, "failed to load parent of %s", c.Hash)
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return false, vcs.WrapErrorf(err, "failed to load parent tree of %s", c.Hash)
	}
	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return false, vcs.WrapErrorf(err, "failed to diff %s against its parent", c.Hash)
	}
	for _, change := range changes {
		if underAnyRoot(change.From.Name, roots) || underAnyRoot(change.To.Name, roots) {
			return true, nil
		}
	}
	return false, nil
}

var errStopIteration = errors.New("stop iteration")

func underAnyRoot(path string, roots []string) bool {
	if path == "" {
		return false
	}
	for _, root := range roots {
		if root == "" || path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}
