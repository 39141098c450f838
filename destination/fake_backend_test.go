package destination

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/mdanatg/copybara/vcs"
)

// fakeCommit is one commit in the fake backend's in-memory history.
type fakeCommit struct {
	sha     string
	body    string
	parents []string
	when    time.Time
}

// fakeBackend is an in-memory, scriptable vcs.Backend that records every
// protocol-relevant interaction for assertions.
type fakeBackend struct {
	// remoteRefs is the observable state of the remote: ref name → sha.
	remoteRefs map[string]string

	// commits holds every commit, remote or locally created.
	commits map[string]fakeCommit

	// refs are local references: name → sha.
	refs map[string]string

	config map[string]string

	// headSHA / headBranch model HEAD; headBranch is empty when detached.
	headSHA      string
	headBranch   string
	symbolicHead string

	fetchCalls   int
	fetchErr     error
	pushes       []string
	pushURLs     []string
	pushErr      error
	staged       bool
	committed    []string
	resetCalls   int
	cleanCalls   int
	checkouts    []string
	rebasedOnto  []string
	updatedRefs  map[string]string
	nextSHA      int
	lastCommit   string
	commitBodies map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		remoteRefs:   map[string]string{},
		commits:      map[string]fakeCommit{},
		refs:         map[string]string{},
		config:       map[string]string{},
		updatedRefs:  map[string]string{},
		commitBodies: map[string]string{},
	}
}

// addRemoteCommit appends a commit to the remote ref's history and returns
// its sha.
func (f *fakeBackend) addRemoteCommit(ref, body string) string {
	parent := f.remoteRefs[ref]
	sha := f.newSHA()
	var parents []string
	if parent != "" {
		parents = []string{parent}
	}
	f.commits[sha] = fakeCommit{sha: sha, body: body, parents: parents, when: time.Unix(int64(1700000000+f.nextSHA), 0)}
	f.remoteRefs[ref] = sha
	return sha
}

func (f *fakeBackend) newSHA() string {
	f.nextSHA++
	return fmt.Sprintf("%040d", f.nextSHA)
}

var _ vcs.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) FetchSingleRef(ctx context.Context, remoteURL, ref string) (*vcs.Revision, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	sha, ok := f.remoteRefs[ref]
	if !ok {
		return nil, vcs.WrapErrorf(vcs.ErrRefNotFound, "ref %q in %q", ref, remoteURL)
	}
	return &vcs.Revision{SHA: sha, Ref: ref}, nil
}

func (f *fakeBackend) ResolveReference(ctx context.Context, name string) (*vcs.Revision, error) {
	if name == "HEAD" {
		if f.headSHA == "" {
			return nil, vcs.WrapError(vcs.ErrRefNotFound, "HEAD")
		}
		return &vcs.Revision{SHA: f.headSHA, Ref: "HEAD"}, nil
	}
	if sha, ok := f.refs[name]; ok {
		return &vcs.Revision{SHA: sha, Ref: name}, nil
	}
	if _, ok := f.commits[name]; ok {
		return &vcs.Revision{SHA: name}, nil
	}
	return nil, vcs.WrapErrorf(vcs.ErrRefNotFound, "reference %q", name)
}

func (f *fakeBackend) RefExists(ctx context.Context, name string) (bool, error) {
	_, err := f.ResolveReference(ctx, name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (f *fakeBackend) UpdateRef(ctx context.Context, name, target string) error {
	rev, err := f.ResolveReference(ctx, target)
	if err != nil {
		return err
	}
	f.refs[name] = rev.SHA
	f.updatedRefs[name] = rev.SHA
	return nil
}

func (f *fakeBackend) SetSymbolicHead(ctx context.Context, branch string) error {
	f.symbolicHead = branch
	f.headBranch = branch
	f.headSHA = ""
	return nil
}

func (f *fakeBackend) CheckoutForce(ctx context.Context, ref string) error {
	f.checkouts = append(f.checkouts, ref)
	rev, err := f.ResolveReference(ctx, ref)
	if err != nil {
		return err
	}
	f.headSHA = rev.SHA
	if _, isBranch := f.refs[ref]; isBranch {
		f.headBranch = ref
	} else {
		f.headBranch = ""
	}
	return nil
}

func (f *fakeBackend) ResetHard(ctx context.Context) error {
	f.resetCalls++
	return nil
}

func (f *fakeBackend) CleanUntracked(ctx context.Context) error {
	f.cleanCalls++
	return nil
}

func (f *fakeBackend) StageReplacement(ctx context.Context, tree fs.Filesystem, filter func(string) bool) error {
	f.staged = true
	return nil
}

func (f *fakeBackend) CommitStaged(ctx context.Context, author vcs.Author, when time.Time, msg string) (string, error) {
	if !f.staged {
		return "", vcs.WrapError(vcs.ErrEmptyCommit, "index matches HEAD")
	}
	sha := f.newSHA()
	var parents []string
	if f.headSHA != "" {
		parents = []string{f.headSHA}
	}
	f.commits[sha] = fakeCommit{sha: sha, body: msg, parents: parents, when: when}
	f.headSHA = sha
	if f.headBranch != "" {
		f.refs[f.headBranch] = sha
	}
	f.staged = false
	f.committed = append(f.committed, sha)
	f.lastCommit = sha
	f.commitBodies[sha] = msg
	return sha, nil
}

func (f *fakeBackend) Rebase(ctx context.Context, onto string) error {
	f.rebasedOnto = append(f.rebasedOnto, onto)
	head := f.commits[f.headSHA]
	head.parents = []string{onto}
	f.commits[f.headSHA] = head
	return nil
}

func (f *fakeBackend) ShowHead(ctx context.Context) (string, error) {
	return "commit " + f.headSHA + "\n\n" + f.commits[f.headSHA].body, nil
}

func (f *fakeBackend) Push(ctx context.Context, remoteURL, refspec string) (string, error) {
	if f.pushErr != nil {
		return "", f.pushErr
	}
	f.pushes = append(f.pushes, refspec)
	f.pushURLs = append(f.pushURLs, remoteURL)
	return "To " + remoteURL + "\n * HEAD -> " + refspec + "\n", nil
}

func (f *fakeBackend) Log(startRevision string) *vcs.LogQuery {
	return vcs.NewLogQuery(startRevision, f.runLog)
}

// runLog walks first parents from the start. Grep is deliberately coarser
// than the label parser, matching on the unanchored label text the way git
// grep can surface false positives for commits that merely mention a label.
func (f *fakeBackend) runLog(ctx context.Context, opts vcs.LogOptions) ([]vcs.LogEntry, error) {
	rev, err := f.ResolveReference(ctx, opts.Start)
	if err != nil {
		return nil, vcs.WrapErrorf(vcs.ErrCannotResolve, "log start %q", opts.Start)
	}

	needle := strings.TrimPrefix(opts.GrepPattern, "^")
	needle = regexp.MustCompile(`\\(.)`).ReplaceAllString(needle, "$1")

	var entries []vcs.LogEntry
	sha := rev.SHA
	for sha != "" {
		c, ok := f.commits[sha]
		if !ok {
			break
		}
		if needle == "" || strings.Contains(c.body, strings.TrimSuffix(needle, " ")) {
			entries = append(entries, vcs.LogEntry{SHA: c.sha, Body: c.body, Parents: c.parents, When: c.when})
			if opts.Limit > 0 && len(entries) == opts.Limit {
				break
			}
		}
		if len(c.parents) == 0 {
			break
		}
		sha = c.parents[0]
	}
	return entries, nil
}

func (f *fakeBackend) SetConfig(ctx context.Context, key, value string) error {
	f.config[key] = value
	return nil
}

func (f *fakeBackend) ConfigValues(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(f.config))
	for k, v := range f.config {
		out[k] = v
	}
	return out, nil
}
