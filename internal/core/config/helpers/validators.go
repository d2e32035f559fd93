package helpers

import (
	"os"
	"path/filepath"
	"strings"
)

func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[]{}")
}

// CleanPath normalises a configured path for comparison.
func CleanPath(p string) string {
	return filepath.Clean(strings.TrimSpace(p))
}

// IsPathOverlap reports whether a and b are the same path or one contains
// the other. "." contains every relative path.
func IsPathOverlap(a, b string) bool {
	if a == b {
		return true
	}
	if a == "." && !filepath.IsAbs(b) || b == "." && !filepath.IsAbs(a) {
		return true
	}
	if strings.HasPrefix(a, b+string(os.PathSeparator)) {
		return true
	}
	if strings.HasPrefix(b, a+string(os.PathSeparator)) {
		return true
	}
	return false
}
