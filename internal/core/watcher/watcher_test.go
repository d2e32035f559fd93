package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func startWatcher(t *testing.T, opts Options, dir string) *Watcher {
	t.Helper()
	w, err := NewWatcher(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background(), []string{dir}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

// waitFor drains batches until one contains path.
func waitFor(t *testing.T, w *Watcher, path string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case paths := <-w.Changes():
			if slices.Contains(paths, path) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for change to %s", path)
		}
	}
}

func TestNewWatcher_RejectsBadGlob(t *testing.T) {
	if _, err := NewWatcher(Options{ExcludeFiles: []string{"[abc"}}); err == nil {
		t.Fatal("expected error for invalid exclude pattern")
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	w := startWatcher(t, Options{
		Debounce:     50 * time.Millisecond,
		ExcludeDirs:  []string{"vendor"},
		ExcludeFiles: []string{"*_spec.rb"},
	}, tmpDir)

	testFile := filepath.Join(tmpDir, "model.rb")
	if err := os.WriteFile(testFile, []byte("class Model; end\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w, testFile)

	for _, name := range []string{"model_spec.rb", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case paths := <-w.Changes():
		t.Errorf("excluded files triggered a batch: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}

	// new directories are watched once created
	subdir := filepath.Join(tmpDir, "lib")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(subdir, "nested.rb")
	if err := os.WriteFile(nested, []byte("module Nested; end\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w, nested)
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	tmpDir := t.TempDir()
	w := startWatcher(t, Options{Debounce: 50 * time.Millisecond}, tmpDir)

	oldPath := filepath.Join(tmpDir, "old.rb")
	newPath := filepath.Join(tmpDir, "new.rb")
	if err := os.WriteFile(oldPath, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w, newPath)
}

func TestWatcher_RateLimitMergesBatches(t *testing.T) {
	tmpDir := t.TempDir()
	w := startWatcher(t, Options{Debounce: 10 * time.Millisecond, RateLimit: 2, RateBurst: 1}, tmpDir)

	first := filepath.Join(tmpDir, "a.rb")
	if err := os.WriteFile(first, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, w, first)

	// both writes land inside the same throttle window
	second := filepath.Join(tmpDir, "b.rb")
	third := filepath.Join(tmpDir, "c.rb")
	if err := os.WriteFile(second, []byte("b = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(third, []byte("c = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-w.Changes():
		if !slices.Contains(paths, third) {
			// the second write may have flushed alone; the third follows
			waitFor(t, w, third)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for rate-limited batch")
	}
}

func TestWatcher_Filters(t *testing.T) {
	w, err := NewWatcher(Options{Extensions: []string{".rb", ".rake"}, ExcludeFiles: []string{"schema.rb"}})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.shouldExcludeFile("main.py") {
		t.Fatal("expected .py to be excluded")
	}
	if w.shouldExcludeFile("tasks/build.rake") {
		t.Fatal("expected .rake to be included")
	}
	if !w.shouldExcludeFile("db/schema.rb") {
		t.Fatal("expected schema.rb to be excluded by pattern")
	}
}
