// Package glob implements the path filter a destination uses to decide which
// files it owns. A filter is a set of include patterns plus optional exclude
// patterns over slash-separated relative paths, with `**` wildcard support.
package glob

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob selects the subset of a tree owned by a destination. The zero value
// is not usable; construct instances with New or All.
type Glob struct {
	include []string
	exclude []string
}

// All returns a filter that owns every path.
func All() *Glob {
	g, _ := New([]string{"**"})
	return g
}

// New builds a filter from include patterns and optional exclude patterns.
// Patterns use doublestar syntax and match whole relative paths.
func New(include []string, exclude ...string) (*Glob, error) {
	if len(include) == 0 {
		return nil, WrapError(ErrNoPatterns, "at least one include pattern is required")
	}
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, WrapErrorf(ErrBadPattern, "invalid glob pattern %q", p)
		}
	}
	return &Glob{include: include, exclude: exclude}, nil
}

// Matches reports whether the filter owns the given slash-separated relative
// path.
func (g *Glob) Matches(path string) bool {
	matched := false
	for _, p := range g.include {
		if ok, _ := doublestar.Match(p, path); ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, p := range g.exclude {
		if ok, _ := doublestar.Match(p, path); ok {
			return false
		}
	}
	return true
}

// Roots returns the literal directory prefixes of the include patterns,
// deduplicated and with roots nested under another root removed. A result
// containing the empty string means the filter reaches the whole tree.
func (g *Glob) Roots() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, p := range g.include {
		r := literalPrefix(p)
		if !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}
	sort.Strings(roots)

	var out []string
	for _, r := range roots {
		covered := false
		for _, kept := range out {
			if kept == "" || r == kept || strings.HasPrefix(r, kept+"/") {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, r)
		}
	}
	return out
}

// IsEmptyRoot reports whether a roots set is equivalent to the repository
// root, meaning history queries cannot be narrowed by path.
func IsEmptyRoot(roots []string) bool {
	return len(roots) == 0 || (len(roots) == 1 && roots[0] == "")
}

// literalPrefix returns the path segments of a pattern up to the first
// segment containing a wildcard.
func literalPrefix(pattern string) string {
	var literal []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.ContainsAny(seg, "*?[{") {
			break
		}
		literal = append(literal, seg)
	}
	return strings.Join(literal, "/")
}
