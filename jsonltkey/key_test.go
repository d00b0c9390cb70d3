package jsonltkey

import (
	"encoding/json"
	"strconv"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/jsonlt/jsonlt/jsonlterr"
)

func TestSingleFieldRejectsEmpty(t *testing.T) {
	_, err := SingleField("")
	assert.ErrorContains(t, err, "non-empty")
}

func TestTupleRejectsShortAndDuplicate(t *testing.T) {
	_, err := Tuple("a")
	assert.ErrorContains(t, err, "at least two")

	_, err = Tuple("a", "a")
	assert.ErrorContains(t, err, "duplicate")
}

func TestFromHeaderValueSingleAndCompound(t *testing.T) {
	spec, err := FromHeaderValue("id")
	assert.NilError(t, err)
	assert.Equal(t, spec.Arity(), 1)
	assert.DeepEqual(t, spec.Fields(), []string{"id"})

	spec, err = FromHeaderValue([]any{"c", "o"})
	assert.NilError(t, err)
	assert.Equal(t, spec.Arity(), 2)
	assert.DeepEqual(t, spec.Fields(), []string{"c", "o"})

	_, err = FromHeaderValue(42)
	assert.ErrorContains(t, err, "must be a string or array")
}

func TestExtractValidScalarTypes(t *testing.T) {
	spec, err := SingleField("id")
	assert.NilError(t, err)

	k, err := Extract(spec, Record{"id": "alice"})
	assert.NilError(t, err)
	s, ok := k.Parts()[0].StringValue()
	assert.Assert(t, ok)
	assert.Equal(t, s, "alice")
}

func TestExtractRejectsInvalidScalars(t *testing.T) {
	spec, err := SingleField("id")
	assert.NilError(t, err)

	cases := []any{nil, true, 1.5, []any{1}, map[string]any{}}
	for _, v := range cases {
		_, err := Extract(spec, Record{"id": v})
		assert.Assert(t, err != nil, "expected error for %v", v)
		assert.Assert(t, jsonlterr.Is(err, jsonlterr.KindInvalidKey))
	}
}

func TestExtractMissingField(t *testing.T) {
	spec, err := SingleField("id")
	assert.NilError(t, err)
	_, err = Extract(spec, Record{"other": "x"})
	assert.Assert(t, jsonlterr.Is(err, jsonlterr.KindInvalidKey))
}

func TestCompareOrdersIntBeforeString(t *testing.T) {
	ik, err := SingleField("id")
	assert.NilError(t, err)
	a, err := Extract(ik, Record{"id": int64AsNumber(1)})
	assert.NilError(t, err)
	b, err := Extract(ik, Record{"id": "1"})
	assert.NilError(t, err)
	assert.Assert(t, a.Compare(b) < 0, "integer key must sort before string key")
}

func TestCompareTuplesComponentwise(t *testing.T) {
	spec, err := Tuple("c", "o")
	assert.NilError(t, err)
	a, err := Extract(spec, Record{"c": "alice", "o": int64AsNumber(1)})
	assert.NilError(t, err)
	b, err := Extract(spec, Record{"c": "alice", "o": int64AsNumber(2)})
	assert.NilError(t, err)
	assert.Assert(t, a.Compare(b) < 0)

	c, err := Extract(spec, Record{"c": "bob", "o": int64AsNumber(0)})
	assert.NilError(t, err)
	assert.Assert(t, b.Compare(c) < 0, "alice < bob regardless of order value")
}

func TestRawIsCollisionFree(t *testing.T) {
	spec, err := Tuple("c", "o")
	assert.NilError(t, err)
	a, err := Extract(spec, Record{"c": "ab", "o": "c"})
	assert.NilError(t, err)
	b, err := Extract(spec, Record{"c": "a", "o": "bc"})
	assert.NilError(t, err)
	assert.Assert(t, a.Raw() != b.Raw(), "length-prefixed encoding must not collide across component boundaries")
}

func TestApplyToRecordRoundTrips(t *testing.T) {
	spec, err := SingleField("id")
	assert.NilError(t, err)
	k, err := Extract(spec, Record{"id": int64AsNumber(7)})
	assert.NilError(t, err)

	rec := Record{}
	ApplyToRecord(spec, k, rec)
	k2, err := Extract(spec, rec)
	assert.NilError(t, err)
	assert.Equal(t, k.Compare(k2), 0)
}

// int64AsNumber mimics how the codec decodes an integer literal: as a
// json.Number, not a Go int64.
func int64AsNumber(i int64) any {
	return json.Number(strconv.FormatInt(i, 10))
}
