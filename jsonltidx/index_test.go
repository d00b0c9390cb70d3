package jsonltidx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/jsonlt/jsonlt/jsonltcodec"
)

func writeFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.jsonlt")
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	assert.NilError(t, os.WriteFile(path, []byte(data), 0o640))
	return path
}

func TestBuildReplaysPutsAndTombstones(t *testing.T) {
	path := writeFile(t,
		`{"$jsonlt":{"key":"id","version":1}}`,
		`{"id":"a","v":1}`,
		`{"id":"b","v":2}`,
		`{"id":"a","v":3}`,
		`{"id":"b","$deleted":true}`,
	)
	idx, err := Build(path, jsonltcodec.Strict, 0)
	assert.NilError(t, err)
	assert.Equal(t, idx.Count(), 1)

	keys := idx.Keys()
	assert.Equal(t, len(keys), 1)
	e, ok := idx.Get(keys[0])
	assert.Assert(t, ok)
	assert.Equal(t, e.Record["v"], json.Number("3"))
}

func TestBuildIsDeterministicAcrossRebuilds(t *testing.T) {
	path := writeFile(t,
		`{"$jsonlt":{"key":"id","version":1}}`,
		`{"id":"a","v":1}`,
		`{"id":"b","v":2}`,
	)
	a, err := Build(path, jsonltcodec.Strict, 0)
	assert.NilError(t, err)
	b, err := Build(path, jsonltcodec.Strict, 0)
	assert.NilError(t, err)
	assert.Equal(t, a.Count(), b.Count())
	for i, k := range a.Keys() {
		assert.Equal(t, k.Compare(b.Keys()[i]), 0)
	}
}

func TestKeysAreInCanonicalOrder(t *testing.T) {
	path := writeFile(t,
		`{"$jsonlt":{"key":"id","version":1}}`,
		`{"id":"zeta"}`,
		`{"id":"alpha"}`,
		`{"id":"mid"}`,
	)
	idx, err := Build(path, jsonltcodec.Strict, 0)
	assert.NilError(t, err)
	keys := idx.Keys()
	assert.Equal(t, len(keys), 3)
	for i := 1; i < len(keys); i++ {
		assert.Assert(t, keys[i-1].Compare(keys[i]) < 0)
	}
}

func TestBuildRejectsTruncatedFinalLineWithoutNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.jsonlt")
	data := "{\"$jsonlt\":{\"key\":\"id\",\"version\":1}}\n{\"id\":\"a\"}\n{\"id\":\"c\""
	assert.NilError(t, os.WriteFile(path, []byte(data), 0o640))
	_, err := Build(path, jsonltcodec.Strict, 0)
	assert.ErrorContains(t, err, "truncated final line")
}

func TestBuildTreatsTrailingPartialWhitespaceAsHarmless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.jsonlt")
	data := "{\"$jsonlt\":{\"key\":\"id\",\"version\":1}}\n{\"id\":\"a\"}\n  "
	assert.NilError(t, os.WriteFile(path, []byte(data), 0o640))
	idx, err := Build(path, jsonltcodec.Strict, 0)
	assert.NilError(t, err)
	assert.Equal(t, idx.Count(), 1)
}

func TestBuildRejectsMissingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.jsonlt")
	assert.NilError(t, os.WriteFile(path, []byte{}, 0o640))
	_, err := Build(path, jsonltcodec.Strict, 0)
	assert.ErrorContains(t, err, "missing header")
}

func TestCloneIsIndependent(t *testing.T) {
	path := writeFile(t,
		`{"$jsonlt":{"key":"id","version":1}}`,
		`{"id":"a","v":1}`,
	)
	idx, err := Build(path, jsonltcodec.Strict, 0)
	assert.NilError(t, err)
	clone := idx.Clone()
	keys := idx.Keys()
	clone.Delete(keys[0], clone.End())
	assert.Equal(t, idx.Count(), 1)
	assert.Equal(t, clone.Count(), 0)
}
