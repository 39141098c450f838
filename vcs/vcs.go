// Package vcs defines the capability interface the migration core uses to
// talk to a version-control repository, together with the value types shared
// between the core and backend implementations. The core never shells out or
// touches repository internals itself; everything goes through Backend, so
// tests can substitute an in-memory double.
package vcs

import (
	"context"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

// OriginLabel is the default commit message label carrying the origin
// revision a migrated commit was produced from.
const OriginLabel = "GitOrigin-RevId"

// Revision identifies a single commit, optionally remembering the reference
// it was resolved from and the label name used to stamp it into commit
// messages.
type Revision struct {
	// SHA is the full commit identifier.
	SHA string

	// Ref is the reference the revision was resolved from, when known.
	Ref string

	// Label overrides the provenance label name. Empty means OriginLabel.
	Label string
}

// LabelName returns the commit message label name used when recording this
// revision as the origin of a migrated commit.
func (r *Revision) LabelName() string {
	if r.Label == "" {
		return OriginLabel
	}
	return r.Label
}

// String returns the revision identifier, which is also the label value
// written into destination commit messages.
func (r *Revision) String() string {
	return r.SHA
}

// Author is the identity recorded on migrated commits.
type Author struct {
	Name  string
	Email string
}

// String renders the author in `Name <email>` form.
func (a Author) String() string {
	return a.Name + " <" + a.Email + ">"
}

// LogEntry is a read-only view of one commit returned by history queries.
type LogEntry struct {
	SHA     string
	Body    string
	Parents []string
	Author  Author
	When    time.Time
}

// Backend is the version-control capability surface consumed by the
// migration core. All operations are synchronous and honor context
// cancellation. Reference lookups distinguish a missing reference
// (ErrRefNotFound) from operational failure.
type Backend interface {
	// FetchSingleRef fetches exactly one reference from the remote into
	// local storage and returns the revision it points at. Returns
	// ErrRefNotFound when the remote does not have the reference.
	FetchSingleRef(ctx context.Context, remoteURL, ref string) (*Revision, error)

	// ResolveReference resolves a local reference or revision expression.
	// Returns ErrRefNotFound when it does not exist.
	ResolveReference(ctx context.Context, name string) (*Revision, error)

	// RefExists reports whether a reference or revision exists locally.
	RefExists(ctx context.Context, name string) (bool, error)

	// UpdateRef points the named reference at the target revision.
	UpdateRef(ctx context.Context, name, target string) error

	// SetSymbolicHead points HEAD at a branch that may not exist yet,
	// bootstrapping commits onto a brand-new history.
	SetSymbolicHead(ctx context.Context, branch string) error

	// CheckoutForce checks out the given reference, discarding local
	// modifications.
	CheckoutForce(ctx context.Context, ref string) error

	// ResetHard discards staged and unstaged changes in the working tree.
	ResetHard(ctx context.Context) error

	// CleanUntracked removes untracked files from the working tree.
	CleanUntracked(ctx context.Context) error

	// StageReplacement replaces the index contents under the filter with
	// the files of the given tree: every in-filter index entry is dropped
	// and every in-filter file of the tree is staged. Entries outside the
	// filter and submodule entries are preserved; submodules are discovered
	// before the replacement so the blanket restage cannot schedule their
	// deletion.
	StageReplacement(ctx context.Context, tree fs.Filesystem, filter func(path string) bool) error

	// CommitStaged creates a commit from the current index and returns its
	// revision identifier. Returns ErrEmptyCommit when nothing is staged
	// and the index matches the parent commit.
	CommitStaged(ctx context.Context, author Author, when time.Time, msg string) (string, error)

	// Rebase linearizes the commits unique to the current branch onto the
	// given revision and moves the branch there.
	Rebase(ctx context.Context, onto string) error

	// ShowHead renders the HEAD commit header plus its diff against the
	// first parent, for display in confirmation prompts.
	ShowHead(ctx context.Context) (string, error)

	// Push updates the remote according to the refspec `[+]<src>:<dst>`
	// and returns the raw server response text for result reporting.
	Push(ctx context.Context, remoteURL, refspec string) (string, error)

	// Log starts a history query at the given revision.
	Log(startRevision string) *LogQuery

	// SetConfig writes a repository-local configuration value.
	SetConfig(ctx context.Context, key, value string) error

	// ConfigValues returns the effective repository configuration as a
	// flat key/value map.
	ConfigValues(ctx context.Context) (map[string]string, error)
}

// LogOptions are the accumulated parameters of a history query.
type LogOptions struct {
	Start           string
	GrepPattern     string
	FirstParentOnly bool
	Paths           []string
	Limit           int
}

// LogQuery is a builder for history queries. Backends construct one via
// NewLogQuery with a runner that executes the accumulated options.
type LogQuery struct {
	opts LogOptions
	run  func(ctx context.Context, opts LogOptions) ([]LogEntry, error)
}

// NewLogQuery builds a query starting at the given revision, executed by
// run when Run is called.
func NewLogQuery(start string, run func(ctx context.Context, opts LogOptions) ([]LogEntry, error)) *LogQuery {
	return &LogQuery{opts: LogOptions{Start: start}, run: run}
}

// Grep restricts results to commits whose message body matches the pattern.
func (q *LogQuery) Grep(pattern string) *LogQuery {
	q.opts.GrepPattern = pattern
	return q
}

// FirstParent restricts traversal to first parents when enabled.
func (q *LogQuery) FirstParent(enabled bool) *LogQuery {
	q.opts.FirstParentOnly = enabled
	return q
}

// WithPaths restricts results to commits touching the given path roots. An
// empty set leaves the query unrestricted.
func (q *LogQuery) WithPaths(roots []string) *LogQuery {
	q.opts.Paths = roots
	return q
}

// WithLimit caps the number of returned entries. Zero means no cap.
func (q *LogQuery) WithLimit(n int) *LogQuery {
	q.opts.Limit = n
	return q
}

// Run executes the query and returns entries ordered newest first.
func (q *LogQuery) Run(ctx context.Context) ([]LogEntry, error) {
	return q.run(ctx, q.opts)
}
