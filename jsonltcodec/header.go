package jsonltcodec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/jsonlt/jsonlt/jsonltkey"
)

// headerVersion is the only format version this implementation understands.
const headerVersion = 1

// ReadHeader validates line 1 of a JSONLT file and returns the key specifier
// it declares. Fails with a plain error (the caller — jsonltidx — attaches
// the line number) on invalid shape or an unsupported version.
func ReadHeader(line []byte, profile Profile) (jsonltkey.Spec, error) {
	rec, err := Decode(line, profile)
	if err != nil {
		return jsonltkey.Spec{}, errors.Wrap(err, "decode header line")
	}

	if profile == Strict {
		for k := range rec {
			if k != jsonltkey.HeaderField {
				return jsonltkey.Spec{}, errors.Newf("unexpected top-level header field %q", k)
			}
		}
	}

	raw, ok := rec[jsonltkey.HeaderField]
	if !ok {
		return jsonltkey.Spec{}, errors.Newf("missing %q header object", jsonltkey.HeaderField)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return jsonltkey.Spec{}, errors.Newf("%q must be a JSON object", jsonltkey.HeaderField)
	}

	if profile == Strict {
		for k := range obj {
			if k != "key" && k != "version" {
				return jsonltkey.Spec{}, errors.Newf("unknown header field %q", k)
			}
		}
	}

	versionRaw, ok := obj["version"]
	if !ok {
		return jsonltkey.Spec{}, errors.New("header missing \"version\"")
	}
	versionNum, ok := versionRaw.(json.Number)
	if !ok {
		return jsonltkey.Spec{}, errors.New("header \"version\" must be a number")
	}
	version, err := versionNum.Int64()
	if err != nil || version != headerVersion {
		return jsonltkey.Spec{}, errors.Newf("unsupported header version %v", versionRaw)
	}

	keyRaw, ok := obj["key"]
	if !ok {
		return jsonltkey.Spec{}, errors.New("header missing \"key\"")
	}
	spec, err := jsonltkey.FromHeaderValue(keyRaw)
	if err != nil {
		return jsonltkey.Spec{}, errors.Wrap(err, "invalid header key specifier")
	}
	return spec, nil
}

// WriteHeader emits the canonical header line for spec.
func WriteHeader(spec jsonltkey.Spec) ([]byte, error) {
	rec := jsonltkey.Record{
		jsonltkey.HeaderField: map[string]any{
			"key":     spec.MarshalHeaderValue(),
			"version": headerVersion,
		},
	}
	return Encode(rec)
}
