package jsonltcodec

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/jsonlt/jsonlt/jsonltkey"
)

func TestEncodeSortsKeysAndTerminatesWithNewline(t *testing.T) {
	line, err := Encode(jsonltkey.Record{"b": 1, "a": 2})
	assert.NilError(t, err)
	assert.Equal(t, string(line), `{"a":2,"b":1}`+"\n")
}

func TestDecodeRoundTrip(t *testing.T) {
	line, err := Encode(jsonltkey.Record{"id": "x", "v": 1})
	assert.NilError(t, err)
	rec, err := Decode(line[:len(line)-1], Strict)
	assert.NilError(t, err)
	assert.Equal(t, rec["id"], "x")
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1,2,3]`), Strict)
	assert.ErrorContains(t, err, "not a JSON object")

	_, err = Decode([]byte(`"just a string"`), Strict)
	assert.ErrorContains(t, err, "not a JSON object")
}

func TestDecodeRejectsEmbeddedNewline(t *testing.T) {
	_, err := Decode([]byte("{\"a\":1}\n"), Strict)
	assert.ErrorContains(t, err, "embedded newline")
}

func TestDecodeRejectsMultipleValues(t *testing.T) {
	_, err := Decode([]byte(`{"a":1}{"b":2}`), Strict)
	assert.ErrorContains(t, err, "more than one")
}

func TestDecodeStrictRejectsDuplicateKeys(t *testing.T) {
	_, err := Decode([]byte(`{"a":1,"a":2}`), Strict)
	assert.ErrorContains(t, err, "duplicate key")
}

func TestDecodeLenientIgnoresDuplicateKeyCheck(t *testing.T) {
	rec, err := Decode([]byte(`{"a":1,"a":2}`), Lenient)
	assert.NilError(t, err)
	assert.Equal(t, len(rec), 1)
}
