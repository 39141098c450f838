package gitrepo

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/require"
)

// testRepo is a helper struct that contains a test repository and its filesystem
type testRepo struct {
	repo  *Repo
	fs    fs.Filesystem
	ctx   context.Context
	clock time.Time
}

// setupTestRepo creates a new test repository with an in-memory filesystem
func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := fsb.NewInMemoryFS()

	repo, err := Init(ctx, &Options{
		FS:     memFS,
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err, "failed to initialize test repository")
	require.NotNil(t, repo, "repository should not be nil")

	return &testRepo{
		repo:  repo,
		fs:    memFS,
		ctx:   ctx,
		clock: time.Unix(1700000000, 0),
	}
}

// setupTestRepoWithCommit creates a test repository with an initial commit
func setupTestRepoWithCommit(t *testing.T) *testRepo {
	t.Helper()

	tr := setupTestRepo(t)
	tr.commitFile(t, "test.txt", "initial content", "Initial commit")
	return tr
}

// nextWhen advances the test clock so successive commits have strictly
// increasing committer times
func (tr *testRepo) nextWhen() time.Time {
	tr.clock = tr.clock.Add(time.Minute)
	return tr.clock
}

// commitFile writes, stages and commits a single file and returns the
// commit sha
func (tr *testRepo) commitFile(t *testing.T, name, content, msg string) string {
	t.Helper()

	err := tr.fs.WriteFile(name, []byte(content), 0o644)
	require.NoError(t, err, "failed to write %s", name)

	_, err = tr.repo.worktree.Add(name)
	require.NoError(t, err, "failed to stage %s", name)

	when := tr.nextWhen()
	sig := &object.Signature{Name: "Test User", Email: "test@example.com", When: when}
	sha, err := tr.repo.worktree.Commit(msg, &git.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	require.NoError(t, err, "failed to commit %s", name)
	return sha.String()
}

// headSHA resolves the current HEAD hash
func (tr *testRepo) headSHA(t *testing.T) string {
	t.Helper()

	head, err := tr.repo.repo.Head()
	require.NoError(t, err, "failed to get HEAD")
	return head.Hash().String()
}

// headCommit loads the commit object at HEAD
func (tr *testRepo) headCommit(t *testing.T) *object.Commit {
	t.Helper()

	commit, err := tr.repo.repo.CommitObject(plumbing.NewHash(tr.headSHA(t)))
	require.NoError(t, err, "failed to load HEAD commit")
	return commit
}

// committedFiles returns the file contents of the tree committed at sha
func (tr *testRepo) committedFiles(t *testing.T, sha string) map[string]string {
	t.Helper()

	commit, err := tr.repo.repo.CommitObject(plumbing.NewHash(sha))
	require.NoError(t, err, "failed to load commit %s", sha)
	tree, err := commit.Tree()
	require.NoError(t, err, "failed to load tree of %s", sha)

	files := map[string]string{}
	err = tree.Files().ForEach(func(f *object.File) error {
		content, contentErr := f.Contents()
		if contentErr != nil {
			return contentErr
		}
		files[f.Name] = content
		return nil
	})
	require.NoError(t, err, "failed to read tree of %s", sha)
	return files
}

// newTree builds an in-memory source tree for staging tests
func newTree(t *testing.T, files map[string]string) fs.Filesystem {
	t.Helper()

	tree := fsb.NewInMemoryFS()
	for name, content := range files {
		require.NoError(t, tree.WriteFile(name, []byte(content), 0o644), "failed to write %s", name)
	}
	return tree
}
