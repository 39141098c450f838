package destination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mdanatg/copybara/console"
	"github.com/mdanatg/copybara/glob"
	"github.com/mdanatg/copybara/message"
	"github.com/mdanatg/copybara/vcs"
)

// Writer drives the commit/push protocol for one destination. A writer
// serves one migration; writers of consecutive migrations in the same run
// share a Session (see Destination.NewWriter) so the destination is fetched
// at most once per run.
type Writer struct {
	destinationFiles *glob.Glob
	skipPush         bool
	url              string
	fetch            string
	push             string
	opts             Options
	generator        CommitGenerator
	reporter         PushResultReporter
	integrates       []IntegrateChanges
	session          *Session
	logger           *slog.Logger
}

// Session exposes the writer's session for handoff-style tests and callers
// that build a follow-up writer explicitly.
func (w *Writer) Session() *Session {
	return w.session
}

// Write turns one transform result into a commit on the session's staging
// branch and, unless skip-push is active, pushes it to the destination's
// push reference. Any step's failure short-circuits the remaining steps.
func (w *Writer) Write(ctx context.Context, res *TransformResult, c console.Console) error {
	w.logger.Info("exporting to destination", "url", w.url, "push", w.push)

	repo, err := w.session.Repo(ctx)
	if err != nil {
		return err
	}
	if err := w.fetchIfNeeded(ctx, repo, c); err != nil {
		return err
	}

	c.Progress("Git Destination: Checking out " + w.fetch)
	localBranchRevision, err := w.localBranchRevision(ctx, repo)
	if err != nil {
		return err
	}
	if err := w.updateLocalBranchToBaseline(ctx, repo, res.Baseline, localBranchRevision); err != nil {
		return err
	}

	if w.session.firstWrite {
		reference := res.Baseline
		if reference == "" {
			reference = w.session.localBranch
		}
		if err := w.configForPush(ctx, repo); err != nil {
			return err
		}
		if !w.opts.Force && localBranchRevision == nil {
			return WrapErrorf(vcs.ErrRefNotFound,
				"cannot checkout %q from %q; enable force mode if the destination is a new git repo"+
					" or you don't care about its current status", reference, w.url)
		}
		if localBranchRevision != nil {
			if err := repo.CheckoutForce(ctx, reference); err != nil {
				return err
			}
		} else {
			// Brand-new repository: aim the next commit at the local branch
			// instead of checking anything out.
			if err := repo.SetSymbolicHead(ctx, w.session.localBranch); err != nil {
				return err
			}
		}
		w.session.firstWrite = false
	} else if !w.skipPush {
		// Should be a no-op, but an iterative migration can take minutes
		// between writes, so grab the latest before staging on top.
		if _, err := w.fetchFromRemote(ctx, repo, c); err != nil {
			return err
		}
	}

	c.Progress("Git Destination: Adding all files")
	if err := repo.StageReplacement(ctx, res.Tree, w.destinationFiles.Matches); err != nil {
		return err
	}

	c.Progress("Git Destination: Creating a local commit")
	info, err := w.generator.Message(res)
	if err != nil {
		return err
	}
	msg := message.Parse(res.Summary)
	for _, label := range info.LabelsToAdd {
		msg.AddLabel(label.Name, label.Value)
	}
	if _, err := repo.CommitStaged(ctx, res.Author, res.Timestamp, msg.String()); err != nil {
		return err
	}

	outside := func(path string) bool { return !w.destinationFiles.Matches(path) }
	for _, integrate := range w.integrates {
		if err := integrate.Run(ctx, repo, info, outside, res, c); err != nil {
			return err
		}
	}

	if res.Baseline != "" {
		if localBranchRevision == nil {
			return WrapErrorf(vcs.ErrRefNotFound,
				"cannot rebase baseline %q onto %q: the branch had no tip before the baseline was applied",
				res.Baseline, w.session.localBranch)
		}
		// Staging leaves unstaged files in the work tree. That is fine for
		// commit/push but not for rebase, which may need to create a
		// conflict resolution work tree; discard them first.
		if err := repo.ResetHard(ctx); err != nil {
			return err
		}
		if err := repo.Rebase(ctx, localBranchRevision.SHA); err != nil {
			return err
		}
	}

	if w.opts.LocalRepoPath != "" {
		// A user-provided directory must not keep migration leftovers:
		// drop tracked changes, untracked files, and land on the branch.
		if err := repo.ResetHard(ctx); err != nil {
			return err
		}
		if err := repo.CleanUntracked(ctx); err != nil {
			return err
		}
		if err := repo.CheckoutForce(ctx, w.session.localBranch); err != nil {
			return err
		}
	}

	if res.AskForConfirmation {
		if err := w.confirm(ctx, repo, c); err != nil {
			return err
		}
	}

	if w.skipPush {
		return nil
	}

	c.Progress(fmt.Sprintf("Git Destination: Pushing to %s %s", w.url, w.push))
	if w.opts.NonFastForwardPush && w.fetch == w.push {
		return WrapError(ErrPolicy, "non-fast-forward push is only allowed when fetch != push")
	}
	refspec := "HEAD:" + w.push
	if w.opts.NonFastForwardPush {
		refspec = "+" + refspec
	}
	response, err := repo.Push(ctx, w.url, refspec)
	if err != nil {
		return err
	}
	w.reporter.Report(ctx, response, info.NewPush, repo)
	return nil
}

// fetchIfNeeded performs the session's single fetch of the destination,
// landing its result on the local staging branch. Later calls are no-ops.
func (w *Writer) fetchIfNeeded(ctx context.Context, repo vcs.Backend, c console.Console) error {
	if w.session.alreadyFetched {
		return nil
	}
	rev, err := w.fetchFromRemote(ctx, repo, c)
	if err != nil {
		return err
	}
	if rev != nil {
		if err := repo.UpdateRef(ctx, w.session.localBranch, rev.SHA); err != nil {
			return err
		}
	}
	w.session.alreadyFetched = true
	return nil
}

// fetchFromRemote fetches the destination's fetch reference. A missing
// remote reference is fatal unless force mode is set, in which case it is
// reported as nil: no prior state.
func (w *Writer) fetchFromRemote(ctx context.Context, repo vcs.Backend, c console.Console) (*vcs.Revision, error) {
	c.Progress(fmt.Sprintf("Git Destination: Fetching: %s %s", w.url, w.fetch))
	rev, err := repo.FetchSingleRef(ctx, w.url, w.fetch)
	if err != nil {
		if errors.Is(err, vcs.ErrRefNotFound) {
			warning := fmt.Sprintf("Git Destination: %q doesn't exist in %q", w.fetch, w.url)
			if !w.opts.Force {
				return nil, WrapErrorf(ErrPolicy, "%s; enable force mode if you want to push anyway", warning)
			}
			c.Warn(warning)
			return nil, nil
		}
		return nil, err
	}
	return rev, nil
}

// localBranchRevision resolves the staging branch tip. A missing branch is
// fatal unless force mode is set, in which case nil means a brand-new
// repository.
func (w *Writer) localBranchRevision(ctx context.Context, repo vcs.Backend) (*vcs.Revision, error) {
	rev, err := repo.ResolveReference(ctx, w.session.localBranch)
	if err != nil {
		if errors.Is(err, vcs.ErrRefNotFound) {
			if w.opts.Force {
				return nil, nil
			}
			return nil, WrapErrorf(err, "could not find %q in %q and force mode was not used", w.fetch, w.url)
		}
		return nil, err
	}
	return rev, nil
}

// updateLocalBranchToBaseline verifies a supplied baseline exists locally
// and moves the staging branch pointer there, so staging happens on top of
// the baseline rather than the branch tip. Force mode does not relax the
// existence check.
func (w *Writer) updateLocalBranchToBaseline(ctx context.Context, repo vcs.Backend, baseline string, tip *vcs.Revision) error {
	if baseline == "" {
		return nil
	}
	exists, err := repo.RefExists(ctx, baseline)
	if err != nil {
		return err
	}
	if !exists {
		relation := fmt.Sprintf("from fetch reference %q", w.fetch)
		if tip == nil {
			relation = fmt.Sprintf("and fetch reference %q itself", w.fetch)
		}
		return WrapErrorf(vcs.ErrRefNotFound, "cannot find baseline %q %s in %q", baseline, relation, w.url)
	}
	return repo.UpdateRef(ctx, w.session.localBranch, baseline)
}

// configForPush writes the push-remote configuration for fixed local
// directories, injects the configured committer identity, and verifies one
// is effective so generated commits carry a correct committer.
func (w *Writer) configForPush(ctx context.Context, repo vcs.Backend) error {
	if w.opts.LocalRepoPath != "" {
		// Let the user push manually from the pinned directory later.
		if err := repo.SetConfig(ctx, "remote.copybara_remote.url", w.url); err != nil {
			return err
		}
		if err := repo.SetConfig(ctx, "remote.copybara_remote.push", w.session.localBranch+":"+w.push); err != nil {
			return err
		}
		if err := repo.SetConfig(ctx, "branch."+w.session.localBranch+".remote", "copybara_remote"); err != nil {
			return err
		}
	}
	if w.opts.CommitterName != "" {
		if err := repo.SetConfig(ctx, "user.name", w.opts.CommitterName); err != nil {
			return err
		}
	}
	if w.opts.CommitterEmail != "" {
		if err := repo.SetConfig(ctx, "user.email", w.opts.CommitterEmail); err != nil {
			return err
		}
	}
	return verifyUserInfoConfigured(ctx, repo)
}

// verifyUserInfoConfigured fails with a policy violation when user.name or
// user.email is not configured, so the committer field of generated commits
// is never empty.
func verifyUserInfoConfigured(ctx context.Context, repo vcs.Backend) error {
	values, err := repo.ConfigValues(ctx)
	if err != nil {
		return err
	}
	if values["user.name"] == "" || values["user.email"] == "" {
		return WrapError(ErrPolicy,
			"'user.name' and/or 'user.email' are not configured; set them in the destination"+
				" options or via `git config --global`")
	}
	return nil
}

// confirm shows the staged change and aborts with ErrChangeRejected unless
// the user approves the push.
func (w *Writer) confirm(ctx context.Context, repo vcs.Backend, c console.Console) error {
	diff, err := repo.ShowHead(ctx)
	if err != nil {
		return err
	}
	c.Info(diff)
	ok, err := c.PromptConfirmation(fmt.Sprintf("Proceed with push to %s %s?", w.url, w.push))
	if err != nil {
		return err
	}
	if !ok {
		c.Warn("Migration aborted by user.")
		return WrapError(ErrChangeRejected, "user did not confirm the staged changes")
	}
	return nil
}
