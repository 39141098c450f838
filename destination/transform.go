package destination

import (
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/mdanatg/copybara/vcs"
)

// TransformResult is the output of the upstream transformation stage: a
// materialized tree plus the metadata needed to turn it into a destination
// commit. Values are immutable and consumed by exactly one Write call.
type TransformResult struct {
	// Tree holds the transformed files to migrate.
	Tree fs.Filesystem

	// Summary is the human-readable commit message base text.
	Summary string

	// Author is the identity recorded on the destination commit.
	Author vcs.Author

	// Timestamp is the author time of the destination commit.
	Timestamp time.Time

	// Baseline optionally names the revision the new commit must be built
	// on top of instead of the destination's current tip.
	Baseline string

	// CurrentRevision is the origin revision this tree was produced from,
	// stamped into the commit message for resumption.
	CurrentRevision *vcs.Revision

	// AskForConfirmation gates the push behind an interactive prompt
	// showing the staged diff.
	AskForConfirmation bool
}
