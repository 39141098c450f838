// Package gitrepo implements the vcs.Backend capability interface on top of
// go-git. It manages the local scratch clone a migration stages and commits
// into, and performs all fetch, push, log and rebase operations against it.
package gitrepo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"path/filepath"

	"github.com/adrg/xdg"
	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/mdanatg/copybara/vcs"
	"github.com/mdanatg/copybara/vcs/gitrepo/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// fetchRef is the internal reference a single-ref fetch lands on before
	// the caller moves it to its working branch.
	fetchRef = "refs/copybara/fetch"

	// pushSourceRef is the internal reference used as the push source when
	// HEAD is detached, since a refspec source must be a named reference.
	pushSourceRef = "refs/copybara/push-head"
)

// Options configures repository creation and performance.
type Options struct {
	// FS is the REQUIRED native filesystem root holding the repository.
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root. Defaults to ".".
	Workdir string

	// StorerCacheSize sets the LRU object cache entries. Defaults to
	// DefaultStorerCacheSize.
	StorerCacheSize int

	// Logger receives operation-level debug logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	if o.FS == nil {
		return vcs.WrapError(vcs.ErrCannotResolve, "FS is required")
	}
	if o.StorerCacheSize < 0 {
		return vcs.WrapError(vcs.ErrCannotResolve, "StorerCacheSize cannot be negative")
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}
	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Repo is a local scratch repository implementing vcs.Backend.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	fs       fs.Filesystem
	options  Options
	logger   *slog.Logger
}

var _ vcs.Backend = (*Repo)(nil)

// Init creates a new non-bare repository at the workdir within the given
// filesystem.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	return open(ctx, opts, git.Init)
}

// Open opens an existing repository at the workdir within the given
// filesystem.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	return open(ctx, opts, git.Open)
}

// InitOrOpen opens the repository if one exists at the workdir and
// initializes a fresh one otherwise. This is how a migration acquires its
// scratch clone: the first run creates it, later runs reuse it.
func InitOrOpen(ctx context.Context, opts *Options) (*Repo, error) {
	r, err := Open(ctx, opts)
	if err == nil {
		return r, nil
	}
	return Init(ctx, opts)
}

func open(
	ctx context.Context,
	opts *Options,
	build func(storage.Storer, gobilly.Filesystem) (*git.Repository, error),
) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, vcs.WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	billyFS, err := fsbridge.ToBilly(opts.FS)
	if err != nil {
		return nil, vcs.WrapError(err, "filesystem conversion failed")
	}
	scopedFS, err := billyFS.Chroot(opts.Workdir)
	if err != nil {
		return nil, vcs.WrapErrorf(err, "failed to chroot to workdir %q", opts.Workdir)
	}
	dotGitFS, err := scopedFS.Chroot(".git")
	if err != nil {
		return nil, vcs.WrapError(err, "failed to access .git directory")
	}

	store := fsbridge.NewStorage(dotGitFS, opts.StorerCacheSize)
	repo, err := build(store, scopedFS)
	if err != nil {
		return nil, vcs.WrapError(err, "failed to open repository")
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, vcs.WrapError(err, "failed to get worktree")
	}

	return &Repo{
		repo:     repo,
		worktree: worktree,
		fs:       opts.FS,
		options:  *opts,
		logger:   opts.Logger,
	}, nil
}

// ScratchDir returns the per-URL cache directory used for ephemeral scratch
// clones when no fixed local repository path is configured.
func ScratchDir(repoURL string) string {
	sum := sha1.Sum([]byte(repoURL))
	return filepath.Join(xdg.CacheHome, "copybara", "repos", hex.EncodeToString(sum[:]))
}

// OpenScratch opens (or creates) the scratch clone for the given remote. A
// non-empty localPath pins the clone to a fixed, user-visible directory;
// otherwise a per-URL directory under the XDG cache home is used.
func OpenScratch(ctx context.Context, repoURL, localPath string, logger *slog.Logger) (*Repo, error) {
	dir := localPath
	if dir == "" {
		dir = ScratchDir(repoURL)
	}
	return InitOrOpen(ctx, &Options{FS: fsb.NewOSFS(dir), Logger: logger})
}
