package utils

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestAtomicWriteFileReplacesContentAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.jsonlt")
	assert.NilError(t, os.WriteFile(path, []byte("old\n"), 0o640))

	assert.NilError(t, AtomicWriteFile(path, []byte("new\n"), 0o640))

	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "new\n")

	entries, err := os.ReadDir(dir)
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 1, "no .tmp-* file should survive a successful write")
}

func TestEnsureDirsCreatesNestedPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	assert.NilError(t, EnsureDirs(dir))
	info, err := os.Stat(dir)
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())
}

func TestValidFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	assert.Assert(t, !ValidFile(missing))

	empty := filepath.Join(dir, "empty")
	assert.NilError(t, os.WriteFile(empty, nil, 0o640))
	assert.Assert(t, !ValidFile(empty))

	nonEmpty := filepath.Join(dir, "data")
	assert.NilError(t, os.WriteFile(nonEmpty, []byte("x"), 0o640))
	assert.Assert(t, ValidFile(nonEmpty))
}
