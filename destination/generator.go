package destination

import (
	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"

	"github.com/mdanatg/copybara/message"
)

// MessageInfo carries the labels a commit generator wants injected into the
// commit message, in order, and whether this is a brand-new push target.
// It is created per write call and consumed immediately.
type MessageInfo struct {
	LabelsToAdd []message.Label
	NewPush     bool
}

// CommitGenerator produces the commit message metadata for one transform
// result.
type CommitGenerator interface {
	Message(res *TransformResult) (*MessageInfo, error)
}

// DefaultCommitGenerator stamps a single label carrying the origin revision
// identifier, so later runs can resolve where the migration left off.
type DefaultCommitGenerator struct {
	// RequireConventional rejects summaries that are not valid conventional
	// commit messages.
	RequireConventional bool
}

// Message implements CommitGenerator.
func (g *DefaultCommitGenerator) Message(res *TransformResult) (*MessageInfo, error) {
	if g.RequireConventional {
		machine := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))
		if _, err := machine.Parse([]byte(res.Summary)); err != nil {
			return nil, WrapErrorf(ErrPolicy, "summary is not a conventional commit message: %v", err)
		}
	}
	rev := res.CurrentRevision
	return &MessageInfo{
		LabelsToAdd: []message.Label{{Name: rev.LabelName(), Value: rev.String()}},
		NewPush:     true,
	}, nil
}
