package destination

import (
	"context"
	"errors"
	"regexp"

	"github.com/mdanatg/copybara/console"
	"github.com/mdanatg/copybara/glob"
	"github.com/mdanatg/copybara/message"
	"github.com/mdanatg/copybara/vcs"
)

// DestinationStatus describes where the last migration left off: the origin
// revision recorded by the most recent migrated commit. PendingChanges is
// reserved for destinations that track in-flight changes and is always empty
// here.
type DestinationStatus struct {
	Baseline       string
	PendingChanges []string
}

// falsePositiveWiden is how many grep-matching commits the resolver inspects
// when the nearest match turns out to mention the label text without
// carrying an actual label line. Beyond that we give up.
const falsePositiveWiden = 50

// DestinationStatus scans destination history for the most recent occurrence
// of the given label and returns its value, or nil when no prior migration
// is found. Callers must treat nil as "full/initial migration", not as an
// error.
func (w *Writer) DestinationStatus(ctx context.Context, labelName string, c console.Console) (*DestinationStatus, error) {
	repo, err := w.session.Repo(ctx)
	if err != nil {
		return nil, err
	}
	if err := w.fetchIfNeeded(ctx, repo, c); err != nil {
		if errors.Is(err, ErrPolicy) {
			// The destination branch does not exist: fresh migration.
			return nil, nil
		}
		return nil, err
	}
	tip, err := w.localBranchRevision(ctx, repo)
	if err != nil || tip == nil {
		return nil, err
	}

	roots := w.destinationFiles.Roots()
	if glob.IsEmptyRoot(roots) {
		roots = nil
	}
	query := repo.Log(tip.SHA).
		Grep("^" + regexp.QuoteMeta(labelName) + message.Separator).
		FirstParent(w.opts.LastRevFirstParent).
		WithPaths(roots)

	// Almost always the first match is the real one, but grep can return a
	// false positive when a commit merely mentions the label text. An empty
	// result however proves the label is absent.
	entries, err := query.WithLimit(1).Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if value, ok := findLabelValue(labelName, entries); ok {
		return &DestinationStatus{Baseline: value}, nil
	}

	entries, err = query.WithLimit(falsePositiveWiden).Run(ctx)
	if err != nil {
		return nil, err
	}
	if value, ok := findLabelValue(labelName, entries); ok {
		return &DestinationStatus{Baseline: value}, nil
	}
	return nil, nil
}

// findLabelValue returns the label value of the nearest entry carrying a
// real label line, taking the last occurrence within that entry's message.
func findLabelValue(labelName string, entries []vcs.LogEntry) (string, bool) {
	for _, entry := range entries {
		if value, ok := message.Parse(entry.Body).LastLabelValue(labelName); ok {
			return value, true
		}
	}
	return "", false
}
