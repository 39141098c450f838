package destination

import (
	"context"
	"log/slog"

	"github.com/mdanatg/copybara/vcs"
)

// PushResultReporter inspects the backend's raw push response and derives
// the resulting commit identifier for reporting.
type PushResultReporter interface {
	// Report receives the raw server response, whether this was the first
	// push to the target ref, and the repository the commit was staged in.
	Report(ctx context.Context, output string, newPush bool, repo vcs.Backend)
}

// LogReporter resolves the pushed revision and logs it. The last reported
// revision is kept for callers that surface a migration summary.
type LogReporter struct {
	logger *slog.Logger

	// DestinationRef is the revision reported by the most recent push.
	DestinationRef string
}

// NewLogReporter builds a reporter over the given logger. A nil logger falls
// back to slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// Report implements PushResultReporter.
func (r *LogReporter) Report(ctx context.Context, output string, newPush bool, repo vcs.Backend) {
	rev, err := repo.ResolveReference(ctx, "HEAD")
	if err != nil {
		r.logger.Warn("failed to resolve pushed revision", "error", err)
		return
	}
	r.DestinationRef = rev.SHA
	r.logger.Info("created revision", "sha", rev.SHA, "new_push", newPush)
}
