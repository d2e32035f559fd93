package app

import (
	"io/fs"
	"path/filepath"
	"sort"

	"rtinfer/internal/core/app/helpers"
	"rtinfer/internal/engine/parser"
)

// ScanDirectories lists the Ruby sources under paths, skipping excluded
// directories and files. The result is sorted so that definition order does
// not depend on the walk.
func ScanDirectories(paths []string, excludeDirs, excludeFiles []string) ([]string, error) {
	dirGlobs, err := helpers.CompileGlobs(excludeDirs, "exclude dir")
	if err != nil {
		return nil, err
	}
	fileGlobs, err := helpers.CompileGlobs(excludeFiles, "exclude file")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, root := range helpers.UniqueScanRoots(paths) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}

			if d.IsDir() {
				if path != root && helpers.MatchAny(dirGlobs, rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !parser.IsRubyFile(path) {
				return nil
			}
			if helpers.MatchAny(fileGlobs, rel) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}
