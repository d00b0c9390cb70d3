// Package jsonltcodec implements the pure line codec (spec §4.2): one JSON
// object per line, UTF-8, canonical (sorted-key, whitespace-free) output.
package jsonltcodec

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/jsonlt/jsonlt/jsonltkey"
)

// Profile controls how strictly Decode validates a line. Output is always
// Strict (spec §6); Lenient is only ever used for reading.
type Profile int

const (
	Strict Profile = iota
	Lenient
)

// Encode renders obj as a single canonical line: UTF-8, object keys sorted
// (encoding/json sorts map[string]V keys at every nesting level), no
// insignificant whitespace, terminated by exactly one newline.
func Encode(obj jsonltkey.Record) ([]byte, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}
	return append(data, '\n'), nil
}

// Decode parses a single line (its trailing newline already stripped by the
// caller) into a record object. Fails if the line is not a single JSON
// object, is not UTF-8, contains an embedded newline, or — under Strict —
// contains a duplicate top-level key.
func Decode(line []byte, profile Profile) (jsonltkey.Record, error) {
	if !utf8.Valid(line) {
		return nil, errors.New("line is not valid UTF-8")
	}
	if bytes.IndexByte(line, '\n') >= 0 {
		return nil, errors.New("line contains an embedded newline")
	}

	if profile == Strict {
		if err := checkNoDuplicateKeys(line); err != nil {
			return nil, err
		}
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var rec jsonltkey.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "decode JSON object")
	}
	if rec == nil {
		return nil, errors.New("line is not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("line contains more than one JSON value")
	}
	return rec, nil
}

// checkNoDuplicateKeys walks the top-level keys of a single JSON object and
// rejects the line if any key name repeats. Nested objects are not checked:
// spec §6 scopes duplicate-key rejection to "a line", which in practice means
// the top-level record object readers and writers care about.
func checkNoDuplicateKeys(line []byte) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "tokenize line")
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return errors.New("line is not a JSON object")
	}

	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "tokenize object key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("object key is not a string")
		}
		if _, dup := seen[key]; dup {
			return errors.Newf("duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return errors.Wrapf(err, "value for key %q", key)
		}
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return errors.Wrap(err, "tokenize closing brace")
	}
	return nil
}
