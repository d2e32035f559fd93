package helpers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueScanRoots(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib")
	other := filepath.Join(dir, "library")

	got := UniqueScanRoots([]string{lib, dir, lib + "/", other})
	assert.Equal(t, []string{dir}, got)

	got = UniqueScanRoots([]string{other, lib})
	assert.Equal(t, []string{lib, other}, got)
}

func TestCompileGlobs(t *testing.T) {
	matchers, err := CompileGlobs([]string{"*_spec.rb", "lib/gen/*.rb"}, "exclude file")
	require.NoError(t, err)

	assert.True(t, MatchAny(matchers, "deep/nested/a_spec.rb"))
	assert.True(t, MatchAny(matchers, "lib/gen/out.rb"))
	assert.False(t, MatchAny(matchers, "lib/gen/deeper/out.rb"))
	assert.False(t, MatchAny(matchers, "lib/a.rb"))
	assert.Equal(t, "lib/gen/*.rb", matchers[1].String())

	_, err = CompileGlobs([]string{"[oops"}, "exclude dir")
	assert.ErrorContains(t, err, "invalid exclude dir pattern")
}
