// Package destination implements the git destination writer protocol of a
// code-migration pipeline: it turns transformed source trees into correctly
// sequenced commit/push operations against a remote repository, with
// fetch-once-per-session caching, baseline rebasing, confirmation and
// fast-forward gating, and label-based resumption.
package destination

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/mdanatg/copybara/glob"
	"github.com/mdanatg/copybara/vcs"
	"github.com/mdanatg/copybara/vcs/gitrepo"
)

// Options configures a git destination beyond its url/fetch/push triple.
type Options struct {
	// CommitterName and CommitterEmail, when set, are written into the
	// scratch repository configuration before the identity check runs.
	CommitterName  string
	CommitterEmail string

	// LocalRepoPath pins the scratch repository to a fixed, user-visible
	// directory instead of an ephemeral per-URL cache clone. Fixed
	// directories get push-remote configuration and post-write cleanup.
	LocalRepoPath string

	// NonFastForwardPush force-pushes the result. Only valid when the
	// fetch and push references differ.
	NonFastForwardPush bool

	// LastRevFirstParent restricts the resumable-status history scan to
	// first parents.
	LastRevFirstParent bool

	// SkipPush runs every local step but omits the push and its reporting.
	SkipPush bool

	// Force converts the "fetch ref missing on remote" and "local branch
	// tip missing" conditions into "proceed from empty state". It does not
	// relax any other validation.
	Force bool

	// RequireConventional makes the default commit generator reject
	// summaries that are not conventional commit messages.
	RequireConventional bool

	// Generator overrides the default commit generator.
	Generator CommitGenerator

	// Reporter overrides the default push result reporter.
	Reporter PushResultReporter

	// Integrates are invoked in order after each migration commit.
	Integrates []IntegrateChanges

	// RepoFactory overrides how the scratch repository is acquired. The
	// default opens a go-git scratch clone under LocalRepoPath, or the
	// per-URL cache directory when unset.
	RepoFactory RepoFactory

	// Logger receives structured operation logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Destination is a git repository migrations are written into. One
// destination serves many writers over its lifetime; writers for the same
// migration run share a session via NewWriter.
type Destination struct {
	url   string
	fetch string
	push  string
	opts  Options

	generator CommitGenerator
	reporter  PushResultReporter
	factory   RepoFactory
	logger    *slog.Logger
}

// New builds a destination that fetches from the fetch reference and pushes
// to the push reference of the repository at url.
func New(url, fetch, push string, opts Options) (*Destination, error) {
	if url == "" || fetch == "" || push == "" {
		return nil, WrapError(ErrPolicy, "url, fetch and push are all required")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Destination{
		url:       url,
		fetch:     fetch,
		push:      push,
		opts:      opts,
		generator: opts.Generator,
		reporter:  opts.Reporter,
		factory:   opts.RepoFactory,
		logger:    opts.Logger,
	}
	if d.generator == nil {
		d.generator = &DefaultCommitGenerator{RequireConventional: opts.RequireConventional}
	}
	if d.reporter == nil {
		d.reporter = NewLogReporter(opts.Logger)
	}
	if d.factory == nil {
		d.factory = func(ctx context.Context) (vcs.Backend, error) {
			return gitrepo.OpenScratch(ctx, url, opts.LocalRepoPath, opts.Logger)
		}
	}
	return d, nil
}

// NewWriter builds a writer for one migration. When oldWriter comes from an
// earlier migration of the same run and was built for the same effective
// skip-push mode, its session is carried over so the destination is fetched
// at most once per run; otherwise a fresh session (and staging branch) is
// created.
func (d *Destination) NewWriter(destinationFiles *glob.Glob, dryRun bool, oldWriter *Writer) *Writer {
	effectiveSkipPush := d.opts.SkipPush || dryRun

	var session *Session
	if oldWriter != nil && oldWriter.skipPush == effectiveSkipPush {
		session = oldWriter.session
	} else {
		branch := d.push
		if d.opts.LocalRepoPath == "" {
			branch = "copybara/push-" + uuid.NewString()
			if dryRun {
				branch += "-dryrun"
			}
		}
		session = newSession(d.factory, branch, effectiveSkipPush)
	}

	return &Writer{
		destinationFiles: destinationFiles,
		skipPush:         effectiveSkipPush,
		url:              d.url,
		fetch:            d.fetch,
		push:             d.push,
		opts:             d.opts,
		generator:        d.generator,
		reporter:         d.reporter,
		integrates:       d.opts.Integrates,
		session:          session,
		logger:           d.logger,
	}
}

// LabelNameWhenOrigin is the label this destination scans for when it acts
// as the origin of a reverse migration.
func (d *Destination) LabelNameWhenOrigin() string {
	return vcs.OriginLabel
}

// Describe returns the destination's configuration as flat metadata.
func (d *Destination) Describe() map[string]string {
	desc := map[string]string{
		"type":  "git.destination",
		"url":   d.url,
		"fetch": d.fetch,
		"push":  d.push,
	}
	if d.opts.SkipPush {
		desc["skip_push"] = strconv.FormatBool(d.opts.SkipPush)
	}
	return desc
}

// String identifies the destination in logs and errors.
func (d *Destination) String() string {
	return fmt.Sprintf("git.destination{url: %s, fetch: %s, push: %s}", d.url, d.fetch, d.push)
}
