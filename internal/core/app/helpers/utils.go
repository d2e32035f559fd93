package helpers

import (
	"fmt"
	"path/filepath"
	"sort"

	"rtinfer/internal/shared/util"

	"github.com/gobwas/glob"
)

// Matcher is a compiled exclude pattern. Patterns holding a path separator
// match the slash path relative to the scan root; the others match the base
// name.
type Matcher struct {
	pattern string
	g       glob.Glob
	path    bool
}

// Match reports whether rel (relative to its scan root) is excluded.
func (m Matcher) Match(rel string) bool {
	if m.path {
		return m.g.Match(util.SlashPath(rel))
	}
	return m.g.Match(filepath.Base(rel))
}

func (m Matcher) String() string { return m.pattern }

func CompileGlobs(patterns []string, label string) ([]Matcher, error) {
	out := make([]Matcher, 0, len(patterns))
	for _, p := range patterns {
		isPath := util.IsPathPattern(p)
		expr := p
		if isPath {
			expr = util.SlashPath(p)
		}
		g, err := glob.Compile(expr, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", label, p, err)
		}
		out = append(out, Matcher{pattern: p, g: g, path: isPath})
	}
	return out, nil
}

// MatchAny reports whether any matcher excludes rel.
func MatchAny(matchers []Matcher, rel string) bool {
	for _, m := range matchers {
		if m.Match(rel) {
			return true
		}
	}
	return false
}

// UniqueScanRoots cleans and de-duplicates roots and drops any root nested
// inside another, so no file is scanned twice.
func UniqueScanRoots(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		normalized := filepath.Clean(p)
		if abs, err := filepath.Abs(normalized); err == nil {
			normalized = filepath.Clean(abs)
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		roots = append(roots, normalized)
	}
	sort.Strings(roots)

	out := roots[:0]
	for _, r := range roots {
		if len(out) > 0 && util.Within(filepath.ToSlash(r), filepath.ToSlash(out[len(out)-1])) {
			continue
		}
		out = append(out, r)
	}
	return out
}
