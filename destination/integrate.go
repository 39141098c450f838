package destination

import (
	"context"

	"github.com/mdanatg/copybara/console"
	"github.com/mdanatg/copybara/vcs"
)

// IntegrateChanges is a hook invoked after the migration commit is created,
// letting auxiliary integration changes (for example folding in a pending
// change referenced by a label) be merged into the staged result.
//
// The outsideDestination predicate reports whether a path is NOT owned by
// this destination's file filter; integrations must never touch files the
// destination does not own.
type IntegrateChanges interface {
	Run(
		ctx context.Context,
		repo vcs.Backend,
		info *MessageInfo,
		outsideDestination func(path string) bool,
		res *TransformResult,
		c console.Console,
	) error
}
