package destination

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdanatg/copybara/console"
	"github.com/mdanatg/copybara/glob"
	"github.com/mdanatg/copybara/vcs"
)

// testConsole records messages and scripts confirmation answers.
type testConsole struct {
	messages []string
	prompts  []string
	confirm  bool
}

func (c *testConsole) Progress(msg string) { c.messages = append(c.messages, msg) }
func (c *testConsole) Info(msg string)     { c.messages = append(c.messages, msg) }
func (c *testConsole) Warn(msg string)     { c.messages = append(c.messages, msg) }
func (c *testConsole) Error(msg string)    { c.messages = append(c.messages, msg) }

func (c *testConsole) PromptConfirmation(msg string) (bool, error) {
	c.prompts = append(c.prompts, msg)
	return c.confirm, nil
}

const testURL = "https://example.com/destination.git"

func newTestDestination(t *testing.T, backend *fakeBackend, opts Options) *Destination {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.RepoFactory == nil {
		opts.RepoFactory = func(ctx context.Context) (vcs.Backend, error) {
			return backend, nil
		}
	}
	if opts.CommitterName == "" {
		opts.CommitterName = "Copybara"
	}
	if opts.CommitterEmail == "" {
		opts.CommitterEmail = "copybara@example.com"
	}

	d, err := New(testURL, "main", "main", opts)
	require.NoError(t, err)
	return d
}

func newTransformResult() *TransformResult {
	return &TransformResult{
		Tree:            fsb.NewInMemoryFS(),
		Summary:         "Import change from origin\n",
		Author:          vcs.Author{Name: "Origin Author", Email: "author@example.com"},
		Timestamp:       time.Unix(1700000500, 0),
		CurrentRevision: &vcs.Revision{SHA: "origin-rev-1"},
	}
}

func TestWriteFirstWritePushes(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{})
	w := d.NewWriter(glob.All(), false, nil)
	c := &testConsole{}

	err := w.Write(context.Background(), newTransformResult(), c)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.fetchCalls)
	require.Len(t, backend.committed, 1)
	body := backend.commitBodies[backend.committed[0]]
	assert.Contains(t, body, "Import change from origin")
	assert.Contains(t, body, "GitOrigin-RevId: origin-rev-1")
	require.Equal(t, []string{"HEAD:main"}, backend.pushes)
	assert.Equal(t, []string{testURL}, backend.pushURLs)
}

func TestWriteFetchesAtMostOncePerSession(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	// Skip-push exercises the pure session cache: with pushing enabled,
	// later writes additionally refresh from the remote before staging.
	d := newTestDestination(t, backend, Options{SkipPush: true})
	c := &testConsole{}

	var w *Writer
	for i := 0; i < 3; i++ {
		w = d.NewWriter(glob.All(), false, w)
		res := newTransformResult()
		res.CurrentRevision = &vcs.Revision{SHA: fmt.Sprintf("origin-rev-%d", i)}
		require.NoError(t, w.Write(context.Background(), res, c))
	}

	assert.Equal(t, 1, backend.fetchCalls)
	assert.Len(t, backend.committed, 3)
	assert.Empty(t, backend.pushes)
}

func TestWriteSubsequentWriteRefreshes(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{})
	c := &testConsole{}

	w := d.NewWriter(glob.All(), false, nil)
	require.NoError(t, w.Write(context.Background(), newTransformResult(), c))
	w = d.NewWriter(glob.All(), false, w)
	require.NoError(t, w.Write(context.Background(), newTransformResult(), c))

	// One session fetch plus one freshness fetch on the second write.
	assert.Equal(t, 2, backend.fetchCalls)
	assert.Len(t, backend.pushes, 2)
}

func TestWriteSkipPushStillCommits(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{SkipPush: true})
	w := d.NewWriter(glob.All(), false, nil)

	err := w.Write(context.Background(), newTransformResult(), &testConsole{})
	require.NoError(t, err)

	assert.Len(t, backend.committed, 1)
	assert.Empty(t, backend.pushes)
}

func TestWriteConfirmationDeclined(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{})
	w := d.NewWriter(glob.All(), false, nil)
	c := &testConsole{confirm: false}

	res := newTransformResult()
	res.AskForConfirmation = true

	err := w.Write(context.Background(), res, c)
	require.ErrorIs(t, err, ErrChangeRejected)
	assert.Empty(t, backend.pushes, "a rejected change must never be pushed")
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], testURL)
}

func TestWriteConfirmationAccepted(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{})
	w := d.NewWriter(glob.All(), false, nil)
	c := &testConsole{confirm: true}

	res := newTransformResult()
	res.AskForConfirmation = true

	require.NoError(t, w.Write(context.Background(), res, c))
	assert.Len(t, backend.pushes, 1)
}

func TestWriteNonFastForwardRequiresDistinctRefs(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	// Force mode must not relax this validation.
	d := newTestDestination(t, backend, Options{NonFastForwardPush: true, Force: true})
	w := d.NewWriter(glob.All(), false, nil)

	err := w.Write(context.Background(), newTransformResult(), &testConsole{})
	require.ErrorIs(t, err, ErrPolicy)
	assert.Contains(t, err.Error(), "fetch != push")
	assert.Empty(t, backend.pushes)
}

func TestWriteNonFastForwardForcePrefix(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("release", "initial\n")

	opts := Options{
		NonFastForwardPush: true,
		Logger:             slog.New(slog.DiscardHandler),
		CommitterName:      "Copybara",
		CommitterEmail:     "copybara@example.com",
		RepoFactory: func(ctx context.Context) (vcs.Backend, error) {
			return backend, nil
		},
	}
	d, err := New(testURL, "release", "main", opts)
	require.NoError(t, err)

	w := d.NewWriter(glob.All(), false, nil)
	require.NoError(t, w.Write(context.Background(), newTransformResult(), &testConsole{}))
	require.Equal(t, []string{"+HEAD:main"}, backend.pushes)
}

func TestWriteEmptyDestinationWithoutForceFails(t *testing.T) {
	backend := newFakeBackend()

	d := newTestDestination(t, backend, Options{})
	w := d.NewWriter(glob.All(), false, nil)

	err := w.Write(context.Background(), newTransformResult(), &testConsole{})
	require.ErrorIs(t, err, ErrPolicy)
	assert.Contains(t, err.Error(), `"main"`)
	assert.Contains(t, err.Error(), testURL)
	assert.Empty(t, backend.committed)
}

func TestWriteEmptyDestinationWithForceBootstraps(t *testing.T) {
	backend := newFakeBackend()

	d := newTestDestination(t, backend, Options{Force: true})
	w := d.NewWriter(glob.All(), false, nil)

	err := w.Write(context.Background(), newTransformResult(), &testConsole{})
	require.NoError(t, err)

	assert.Equal(t, w.Session().LocalBranch(), backend.symbolicHead,
		"an empty destination is bootstrapped by pointing HEAD at the staging branch")
	assert.Empty(t, backend.checkouts)
	assert.Len(t, backend.committed, 1)
	assert.Len(t, backend.pushes, 1)
}

func TestWriteMissingBaselineFails(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{})
	w := d.NewWriter(glob.All(), false, nil)

	res := newTransformResult()
	res.Baseline = "no-such-revision"

	err := w.Write(context.Background(), res, &testConsole{})
	require.ErrorIs(t, err, vcs.ErrRefNotFound)
	assert.Contains(t, err.Error(), "no-such-revision")
	assert.Contains(t, err.Error(), testURL)
	assert.Contains(t, err.Error(), "fetch reference")
	assert.Empty(t, backend.committed)
}

func TestWriteBaselineRebasesOntoPreBaselineTip(t *testing.T) {
	backend := newFakeBackend()
	baseline := backend.addRemoteCommit("main", "old baseline\n")
	tip := backend.addRemoteCommit("main", "current tip\n")

	d := newTestDestination(t, backend, Options{})
	w := d.NewWriter(glob.All(), false, nil)

	res := newTransformResult()
	res.Baseline = baseline

	require.NoError(t, w.Write(context.Background(), res, &testConsole{}))

	// Staging happened on top of the baseline, then the new commit was
	// linearized back onto the tip recorded before the baseline moved the
	// branch.
	require.Equal(t, []string{tip}, backend.rebasedOnto)
	require.Len(t, backend.committed, 1)
	head := backend.commits[backend.committed[0]]
	require.Equal(t, []string{tip}, head.parents,
		"final commit must descend from the original tip")
	assert.GreaterOrEqual(t, backend.resetCalls, 1,
		"unstaged leftovers must be discarded before rebasing")
}

func TestWriteBaselineWithoutBranchTipFails(t *testing.T) {
	backend := newFakeBackend()
	// The scratch clone retains a commit from an earlier run even though the
	// remote reference is gone, so the baseline still resolves locally.
	stale := backend.addRemoteCommit("main", "earlier import\n")
	delete(backend.remoteRefs, "main")

	d := newTestDestination(t, backend, Options{Force: true})
	w := d.NewWriter(glob.All(), false, nil)

	res := newTransformResult()
	res.Baseline = stale

	err := w.Write(context.Background(), res, &testConsole{})
	require.ErrorIs(t, err, vcs.ErrRefNotFound)
	assert.Contains(t, err.Error(), stale)
	assert.Empty(t, backend.rebasedOnto)
	assert.Empty(t, backend.pushes)
}

func TestWriteDoesNotDuplicateExistingLabel(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{})
	w := d.NewWriter(glob.All(), false, nil)

	res := newTransformResult()
	res.Summary = "Import change\n\nGitOrigin-RevId: upstream-choice\n"
	res.CurrentRevision = &vcs.Revision{SHA: "different-value"}

	require.NoError(t, w.Write(context.Background(), res, &testConsole{}))

	body := backend.commitBodies[backend.committed[0]]
	assert.Equal(t, 1, strings.Count(body, "GitOrigin-RevId"))
	assert.Contains(t, body, "GitOrigin-RevId: upstream-choice")
	assert.NotContains(t, body, "different-value")
}

func TestWriteLocalRepoPathCleansUp(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	d := newTestDestination(t, backend, Options{LocalRepoPath: "/work/dest"})
	w := d.NewWriter(glob.All(), false, nil)

	require.NoError(t, w.Write(context.Background(), newTransformResult(), &testConsole{}))

	// Fixed directories get push-remote configuration...
	assert.Equal(t, testURL, backend.config["remote.copybara_remote.url"])
	assert.Equal(t, "main:main", backend.config["remote.copybara_remote.push"])
	assert.Equal(t, "copybara_remote", backend.config["branch.main.remote"])
	// ...and post-write cleanup back onto the staging branch.
	assert.GreaterOrEqual(t, backend.resetCalls, 1)
	assert.Equal(t, 1, backend.cleanCalls)
	assert.Equal(t, "main", backend.checkouts[len(backend.checkouts)-1])
}

func TestWriteMissingCommitterIdentityFails(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	opts := Options{
		Logger: slog.New(slog.DiscardHandler),
		RepoFactory: func(ctx context.Context) (vcs.Backend, error) {
			return backend, nil
		},
	}
	d, err := New(testURL, "main", "main", opts)
	require.NoError(t, err)

	w := d.NewWriter(glob.All(), false, nil)
	err = w.Write(context.Background(), newTransformResult(), &testConsole{})
	require.ErrorIs(t, err, ErrPolicy)
	assert.Contains(t, err.Error(), "user.name")
}

// recordingIntegrate captures the arguments of its Run invocation.
type recordingIntegrate struct {
	calls   int
	outside func(string) bool
}

func (r *recordingIntegrate) Run(
	ctx context.Context,
	repo vcs.Backend,
	info *MessageInfo,
	outside func(string) bool,
	res *TransformResult,
	c console.Console,
) error {
	r.calls++
	r.outside = outside
	return nil
}

func TestWriteRunsIntegrateHooks(t *testing.T) {
	backend := newFakeBackend()
	backend.addRemoteCommit("main", "initial\n")

	hook := &recordingIntegrate{}
	d := newTestDestination(t, backend, Options{Integrates: []IntegrateChanges{hook}})

	files, err := glob.New([]string{"sync/**"})
	require.NoError(t, err)
	w := d.NewWriter(files, false, nil)

	require.NoError(t, w.Write(context.Background(), newTransformResult(), &testConsole{}))

	require.Equal(t, 1, hook.calls, "hooks run once per write, after the commit")
	require.NotNil(t, hook.outside)
	assert.False(t, hook.outside("sync/owned.txt"))
	assert.True(t, hook.outside("elsewhere/file.txt"),
		"the predicate marks paths this destination does not own")
	assert.Len(t, backend.committed, 1)
}

func TestNewWriterSessionReuse(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDestination(t, backend, Options{})

	w1 := d.NewWriter(glob.All(), false, nil)
	w2 := d.NewWriter(glob.All(), false, w1)
	assert.Same(t, w1.Session(), w2.Session(), "same push mode shares the session")

	// A differing effective skip-push mode invalidates the session.
	w3 := d.NewWriter(glob.All(), true, w2)
	assert.NotSame(t, w2.Session(), w3.Session())
	assert.Contains(t, w3.Session().LocalBranch(), "-dryrun")

	assert.True(t, strings.HasPrefix(w1.Session().LocalBranch(), "copybara/push-"))
	assert.NotEqual(t, w1.Session().LocalBranch(), w3.Session().LocalBranch())
}

func TestDescribe(t *testing.T) {
	backend := newFakeBackend()
	d := newTestDestination(t, backend, Options{SkipPush: true})

	desc := d.Describe()
	assert.Equal(t, "git.destination", desc["type"])
	assert.Equal(t, testURL, desc["url"])
	assert.Equal(t, "true", desc["skip_push"])
	assert.Equal(t, vcs.OriginLabel, d.LabelNameWhenOrigin())
}
