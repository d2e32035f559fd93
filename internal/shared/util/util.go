package util

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SlashPath turns a path into the cleaned, slash-separated form that exclude
// globs and report paths are compared in. "." becomes "".
func SlashPath(s string) string {
	clean := path.Clean(strings.TrimSpace(strings.ReplaceAll(s, "\\", "/")))
	if clean == "." {
		return ""
	}
	return strings.TrimPrefix(clean, "./")
}

// IsPathPattern reports whether an exclude pattern names a path such as
// "spec/fixtures" rather than a base name such as "*_spec.rb".
func IsPathPattern(pattern string) bool {
	return strings.ContainsAny(pattern, `/\`)
}

// Within reports whether p is dir or lies beneath it.
func Within(p, dir string) bool {
	p = SlashPath(p)
	dir = SlashPath(dir)
	if p == "" || dir == "" || p == dir {
		return p == dir
	}
	return strings.HasPrefix(p, dir+"/")
}

// RelTo returns p relative to root in slash form. ok is false when p lies
// outside root.
func RelTo(root, p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil || !Within(filepath.ToSlash(abs), filepath.ToSlash(root)) {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", false
	}
	return SlashPath(rel), true
}

// WriteFileAtomic writes data to p through a temporary file beside it and
// renames it into place, creating missing parent directories. Readers see
// the old content or the new, never a partial file.
func WriteFileAtomic(p string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}
