// This file contains repository configuration access, used to set up push
// remotes and committer identity and to verify them before committing.
package gitrepo

import (
	"bytes"
	"context"
	"strings"

	"github.com/go-git/go-git/v5/config"
	format "github.com/go-git/go-git/v5/plumbing/format/config"

	"github.com/mdanatg/copybara/vcs"
)

// SetConfig writes a repository-local configuration value. Keys use the
// usual dotted form: `section.name` or `section.subsection.name`.
func (r *Repo) SetConfig(ctx context.Context, key, value string) error {
	section, subsection, name, err := splitConfigKey(key)
	if err != nil {
		return err
	}

	cfg, err := r.repo.Config()
	if err != nil {
		return vcs.WrapError(err, "failed to read repository config")
	}
	if subsection == "" {
		cfg.Raw.Section(section).SetOption(name, value)
	} else {
		cfg.Raw.Section(section).Subsection(subsection).SetOption(name, value)
	}

	// Persisting regenerates the user, remote and branch sections from the
	// structured config fields, dropping edits made only on the raw form. A
	// round trip through the encoder rebuilds the structured view from the
	// mutated raw sections first, so the write survives for every section.
	var buf bytes.Buffer
	if err := format.NewEncoder(&buf).Encode(cfg.Raw); err != nil {
		return vcs.WrapErrorf(err, "failed to encode config %q", key)
	}
	updated := config.NewConfig()
	if err := updated.Unmarshal(buf.Bytes()); err != nil {
		return vcs.WrapErrorf(err, "failed to parse config %q", key)
	}

	if err := r.repo.SetConfig(updated); err != nil {
		return vcs.WrapErrorf(err, "failed to set config %q", key)
	}
	return nil
}

// ConfigValues returns the effective configuration, including values
// inherited from global and system scope, as a flat dotted-key map.
func (r *Repo) ConfigValues(ctx context.Context) (map[string]string, error) {
	cfg, err := r.repo.ConfigScoped(config.SystemScope)
	if err != nil {
		return nil, vcs.WrapError(err, "failed to read repository config")
	}

	values := make(map[string]string)
	for _, section := range cfg.Raw.Sections {
		for _, opt := range section.Options {
			values[section.Name+"."+opt.Key] = opt.Value
		}
		for _, sub := range section.Subsections {
			for _, opt := range sub.Options {
				values[section.Name+"."+sub.Name+"."+opt.Key] = opt.Value
			}
		}
	}
	return values, nil
}

func splitConfigKey(key string) (section, subsection, name string, err error) {
	parts := strings.Split(key, ".")
	switch len(parts) {
	case 2:
		return parts[0], "", parts[1], nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", vcs.WrapErrorf(vcs.ErrCannotResolve, "malformed config key %q", key)
	}
}
