package destination

import (
	"context"

	"github.com/mdanatg/copybara/vcs"
)

// RepoFactory lazily acquires the local scratch repository a destination
// stages into. The session memoizes the result so every write of one
// migration run shares a single clone.
type RepoFactory func(ctx context.Context) (vcs.Backend, error)

// Session is the state shared by all writers targeting one destination
// within a migration run. It is owned by a single writer lineage and must
// not be used by two writers concurrently.
type Session struct {
	// alreadyFetched flips to true after the one fetch of this session and
	// is never reset.
	alreadyFetched bool

	// firstWrite is true until the first successful local checkout,
	// regardless of whether pushing is enabled.
	firstWrite bool

	// localBranch is the staging branch, unique to this session and stable
	// across its write calls.
	localBranch string

	// skipPush records the effective skip-push mode the session was built
	// for; a differing mode invalidates the session.
	skipPush bool

	factory RepoFactory
	repo    vcs.Backend
}

func newSession(factory RepoFactory, localBranch string, skipPush bool) *Session {
	return &Session{
		firstWrite:  true,
		localBranch: localBranch,
		skipPush:    skipPush,
		factory:     factory,
	}
}

// Repo returns the session's scratch repository, acquiring it on first use.
func (s *Session) Repo(ctx context.Context) (vcs.Backend, error) {
	if s.repo != nil {
		return s.repo, nil
	}
	repo, err := s.factory(ctx)
	if err != nil {
		return nil, WrapError(err, "failed to acquire local repository")
	}
	s.repo = repo
	return repo, nil
}

// LocalBranch returns the name of the session's staging branch.
func (s *Session) LocalBranch() string {
	return s.localBranch
}
