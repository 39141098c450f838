package destination

import (
	"context"
	"errors"

	"github.com/mdanatg/copybara/console"
	"github.com/mdanatg/copybara/vcs"
)

// VisitResult tells VisitChanges whether to keep walking history.
type VisitResult int

const (
	// VisitContinue proceeds to the first parent of the visited commit.
	VisitContinue VisitResult = iota

	// VisitTerminate stops the walk after the visited commit.
	VisitTerminate
)

// ChangeVisitor is invoked once per commit, newest first.
type ChangeVisitor func(entry vcs.LogEntry) (VisitResult, error)

// VisitChanges replays destination history from start (or the staging
// branch tip when start is nil), one commit at a time along first parents,
// until the visitor terminates the walk or a parentless commit is reached.
// Returns an error wrapping vcs.ErrCannotResolve when the starting point
// cannot be found, for example on a bare, empty destination.
func (w *Writer) VisitChanges(ctx context.Context, start *vcs.Revision, visitor ChangeVisitor, c console.Console) error {
	repo, err := w.session.Repo(ctx)
	if err != nil {
		return err
	}
	if err := w.fetchIfNeeded(ctx, repo, c); err != nil {
		return WrapError(vcs.ErrCannotResolve,
			"cannot visit changes because fetch failed; does the destination branch exist?")
	}
	tip, err := w.localBranchRevision(ctx, repo)
	if err != nil {
		return err
	}
	if tip == nil {
		return nil
	}

	sha := tip.SHA
	if start != nil {
		sha = start.SHA
	}
	for {
		entries, err := repo.Log(sha).WithLimit(1).Run(ctx)
		if err != nil && !errors.Is(err, vcs.ErrCannotResolve) {
			return err
		}
		if err != nil || len(entries) == 0 {
			if start == nil {
				c.Error("Unable to find HEAD - is the destination repository bare?")
			}
			return WrapErrorf(vcs.ErrCannotResolve, "cannot find reference %q", sha)
		}
		entry := entries[0]
		result, err := visitor(entry)
		if err != nil {
			return err
		}
		if result == VisitTerminate || len(entry.Parents) == 0 {
			return nil
		}
		sha = entry.Parents[0]
	}
}
