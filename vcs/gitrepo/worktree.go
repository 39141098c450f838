// This file contains working tree and index operations (checkout, reset,
// clean, staging and commit).
package gitrepo

import (
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/mdanatg/copybara/vcs"
)

// CheckoutForce checks out the given reference, discarding any local
// modifications. Branch names keep HEAD attached so later commits move the
// branch; anything else is checked out detached.
func (r *Repo) CheckoutForce(ctx context.Context, ref string) error {
	opts := &git.CheckoutOptions{Force: true}

	branch := branchRefName(ref)
	if _, err := r.repo.Reference(branch, false); err == nil && branch.IsBranch() {
		opts.Branch = branch
	} else {
		rev, err := r.ResolveReference(ctx, ref)
		if err != nil {
			return err
		}
		opts.Hash = plumbing.NewHash(rev.SHA)
	}

	if err := r.worktree.Checkout(opts); err != nil {
		return vcs.WrapErrorf(err, "failed to checkout %q", ref)
	}
	return nil
}

// ResetHard discards staged and unstaged changes, restoring the working tree
// to HEAD.
func (r *Repo) ResetHard(ctx context.Context) error {
	if err := r.worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return vcs.WrapError(err, "failed to reset working tree")
	}
	return nil
}

// CleanUntracked removes untracked files and directories from the working
// tree.
func (r *Repo) CleanUntracked(ctx context.Context) error {
	if err := r.worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return vcs.WrapError(err, "failed to clean untracked files")
	}
	return nil
}

// StageReplacement replaces the index contents under the filter with the
// files of the given tree. Index entries outside the filter survive, as do
// submodule (gitlink) entries: those are collected up front, before any
// in-filter entry is dropped, so the blanket restage can never schedule a
// submodule for deletion.
func (r *Repo) StageReplacement(ctx context.Context, tree fs.Filesystem, filter func(path string) bool) error {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return vcs.WrapError(err, "failed to read index")
	}

	// Submodules and out-of-filter entries are preserved verbatim.
	var kept []*index.Entry
	for _, entry := range idx.Entries {
		if entry.Mode == filemode.Submodule || !filter(entry.Name) {
			kept = append(kept, entry)
		}
	}

	staged, err := r.stageTree(ctx, tree, filter)
	if err != nil {
		return err
	}

	entries := append(kept, staged...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	idx.Entries = entries

	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return vcs.WrapError(err, "failed to write index")
	}
	return nil
}

// stageTree hashes every in-filter file of the tree into object storage and
// returns the corresponding index entries.
func (r *Repo) stageTree(ctx context.Context, tree fs.Filesystem, filter func(path string) bool) ([]*index.Entry, error) {
	var entries []*index.Entry
	walkErr := tree.Walk(".", func(p string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := normalizePath(p)
		if rel == "" {
			return nil
		}
		if info.IsDir() {
			if rel == ".git" {
				return iofs.SkipDir
			}
			return nil
		}
		if !filter(rel) {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		hash, size, hashErr := r.hashBlob(tree, p)
		if hashErr != nil {
			return hashErr
		}
		mode := filemode.Regular
		if info.Mode()&0o111 != 0 {
			mode = filemode.Executable
		}
		entries = append(entries, &index.Entry{
			Name:       rel,
			Hash:       hash,
			Mode:       mode,
			Size:       uint32(size),
			ModifiedAt: info.ModTime(),
			CreatedAt:  info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, vcs.WrapError(walkErr, "failed to stage transformed tree")
	}
	return entries, nil
}

// hashBlob stores the file contents as a blob object and returns its hash.
func (r *Repo) hashBlob(tree fs.Filesystem, name string) (plumbing.Hash, int64, error) {
	f, err := tree.Open(name)
	if err != nil {
		return plumbing.ZeroHash, 0, vcs.WrapErrorf(err, "failed to open %q", name)
	}
	defer f.Close()

	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, 0, vcs.WrapError(err, "failed to create blob writer")
	}
	size, err := io.Copy(w, f)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return plumbing.ZeroHash, 0, vcs.WrapErrorf(err, "failed to hash %q", name)
	}
	obj.SetSize(size)

	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, 0, vcs.WrapErrorf(err, "failed to store blob for %q", name)
	}
	return hash, size, nil
}

// CommitStaged creates a commit from the current index with the given author
// and timestamp, and returns its revision identifier. The committer identity
// comes from repository configuration, with the author standing in when no
// identity is configured.
func (r *Repo) CommitStaged(ctx context.Context, author vcs.Author, when time.Time, msg string) (string, error) {
	cfg, err := r.repo.ConfigScoped(config.SystemScope)
	if err != nil {
		return "", vcs.WrapError(err, "failed to read repository config")
	}
	// go-git only consults the configured identity when the author is left
	// unset, so the committer has to be spelled out alongside the author.
	committer := &object.Signature{Name: cfg.User.Name, Email: cfg.User.Email, When: when}
	if committer.Name == "" && committer.Email == "" {
		committer = &object.Signature{Name: author.Name, Email: author.Email, When: when}
	}

	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  when,
		},
		Committer: committer,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", vcs.WrapError(vcs.ErrEmptyCommit, "index matches HEAD")
		}
		return "", vcs.WrapError(err, "failed to commit staged changes")
	}
	r.logger.Debug("created commit", "sha", hash.String())
	return hash.String(), nil
}

// normalizePath converts a Walk callback path to a slash-separated path
// relative to the tree root.
func normalizePath(p string) string {
	rel := strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	if rel == "." {
		return ""
	}
	return strings.TrimPrefix(rel, "/")
}
