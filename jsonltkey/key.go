// Package jsonltkey implements the JSONLT key model: the key specifier K
// declared by a table's header, extraction of a canonical key from a record,
// and the canonical ordering used by the materialized view and by keys().
package jsonltkey

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/jsonlt/jsonlt/jsonlterr"
)

// Record is a dynamic JSON object, per spec §9: implementations must not
// assume a static schema. Numbers are decoded as json.Number so integer values
// survive round-tripping without float64 rounding; an integer used as a key
// component must still fit in an int64 (see scalarFromJSON).
type Record map[string]any

// Reserved top-level field names.
const (
	HeaderField   = "$jsonlt"
	DeletedField  = "$deleted"
)

// Spec is the key specifier K: a single field name, or an ordered tuple of
// two or more distinct field names. Immutable once created.
type Spec struct {
	fields []string
}

// SingleField builds a single-field key specifier.
func SingleField(name string) (Spec, error) {
	if name == "" {
		return Spec{}, errors.New("key field name must be non-empty")
	}
	return Spec{fields: []string{name}}, nil
}

// Tuple builds a compound key specifier from two or more distinct field names.
func Tuple(names ...string) (Spec, error) {
	if len(names) < 2 {
		return Spec{}, errors.New("compound key requires at least two fields")
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			return Spec{}, errors.New("key field name must be non-empty")
		}
		if _, dup := seen[n]; dup {
			return Spec{}, errors.Newf("duplicate key field %q", n)
		}
		seen[n] = struct{}{}
	}
	out := make([]string, len(names))
	copy(out, names)
	return Spec{fields: out}, nil
}

// FromHeaderValue builds a Spec from the decoded JSON value of the header's
// "key" field: either a JSON string (single field) or a JSON array of 2+
// strings (compound key).
func FromHeaderValue(v any) (Spec, error) {
	switch t := v.(type) {
	case string:
		return SingleField(t)
	case []any:
		names := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return Spec{}, errors.Newf("key field %d is not a string", i)
			}
			names[i] = s
		}
		return Tuple(names...)
	default:
		return Spec{}, errors.Newf("header key must be a string or array of strings, got %T", v)
	}
}

// Fields returns the ordered field names making up the key.
func (s Spec) Fields() []string { return s.fields }

// Arity returns the number of fields (1 for a single field, 2+ for a tuple).
func (s Spec) Arity() int { return len(s.fields) }

// Equal reports whether two specs declare the same fields in the same order.
func (s Spec) Equal(other Spec) bool {
	if len(s.fields) != len(other.fields) {
		return false
	}
	for i, f := range s.fields {
		if f != other.fields[i] {
			return false
		}
	}
	return true
}

// MarshalHeaderValue returns the JSON-ready representation of the spec for
// the header line: a bare string for a single field, an array for a tuple.
func (s Spec) MarshalHeaderValue() any {
	if len(s.fields) == 1 {
		return s.fields[0]
	}
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s Spec) String() string {
	return strings.Join(s.fields, ",")
}

// scalarKind distinguishes the two valid key-component JSON types.
type scalarKind int

const (
	kindInt scalarKind = iota
	kindString
)

// Scalar is a single valid key component: a string or a finite integer.
type Scalar struct {
	kind scalarKind
	str  string
	i    int64
}

// String constructs a string-valued key component.
func String(s string) Scalar { return Scalar{kind: kindString, str: s} }

// Int constructs an integer-valued key component.
func Int(i int64) Scalar { return Scalar{kind: kindInt, i: i} }

// IsString reports whether the scalar holds a string value.
func (s Scalar) IsString() bool { return s.kind == kindString }

// StringValue returns the string value and true, or "" and false.
func (s Scalar) StringValue() (string, bool) {
	if s.kind != kindString {
		return "", false
	}
	return s.str, true
}

// IntValue returns the integer value and true, or 0 and false.
func (s Scalar) IntValue() (int64, bool) {
	if s.kind != kindInt {
		return 0, false
	}
	return s.i, true
}

// compareScalar orders a before/equal/after b: integers rank before strings
// when kinds differ (spec §3: "mixed-type orderings break ties by type rank
// (integer < string)"); same-kind values compare by numeric value or by
// Unicode code-point sequence.
func compareScalar(a, b Scalar) int {
	if a.kind != b.kind {
		if a.kind == kindInt {
			return -1
		}
		return 1
	}
	if a.kind == kindInt {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a.str, b.str)
}

// Key is a canonical, ordered, hashable key value, either a single scalar or
// an ordered tuple of scalars for a compound K.
type Key struct {
	parts []Scalar
}

// Of builds a Key from one or more scalars, in field order.
func Of(parts ...Scalar) Key {
	out := make([]Scalar, len(parts))
	copy(out, parts)
	return Key{parts: out}
}

// Parts returns the key's scalar components in field order.
func (k Key) Parts() []Scalar { return k.parts }

// Arity returns the number of scalar components.
func (k Key) Arity() int { return len(k.parts) }

// Compare returns <0, 0, or >0 as k orders before, at, or after other,
// comparing componentwise per spec §3 and stopping at the first difference.
func (k Key) Compare(other Key) int {
	n := len(k.parts)
	if len(other.parts) < n {
		n = len(other.parts)
	}
	for i := 0; i < n; i++ {
		if c := compareScalar(k.parts[i], other.parts[i]); c != 0 {
			return c
		}
	}
	return len(k.parts) - len(other.parts)
}

// Raw returns a byte-unambiguous encoding of the key suitable for use as a Go
// map key: each component is length-prefixed so no concatenation of distinct
// tuples can collide, regardless of separator characters appearing in string
// components.
func (k Key) Raw() string {
	var b strings.Builder
	for _, p := range k.parts {
		if p.kind == kindInt {
			b.WriteByte('i')
			b.WriteString(formatInt(p.i))
			b.WriteByte(';')
			continue
		}
		b.WriteByte('s')
		b.WriteString(formatInt(int64(len(p.str))))
		b.WriteByte(':')
		b.WriteString(p.str)
		b.WriteByte(';')
	}
	return b.String()
}

func formatInt(i int64) string {
	// Avoids importing strconv twice across the package; kept local and small.
	if i == 0 {
		return "0"
	}
	neg := i < 0
	u := uint64(i)
	if neg {
		u = uint64(-i)
	}
	var buf [20]byte
	pos := len(buf)
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Extract derives the canonical Key declared by spec from record, validating
// that every key field is present and holds a valid scalar type (spec §3:
// JSON null, booleans, floats with fractional parts, arrays, and objects are
// invalid as key components).
func Extract(spec Spec, record Record) (Key, error) {
	parts := make([]Scalar, len(spec.fields))
	for i, f := range spec.fields {
		v, ok := record[f]
		if !ok {
			return Key{}, jsonlterr.InvalidKey(nil, "record missing key field %q", f)
		}
		sc, err := scalarFromJSON(v)
		if err != nil {
			return Key{}, jsonlterr.InvalidKey(nil, "key field %q: %v", f, err)
		}
		parts[i] = sc
	}
	return Key{parts: parts}, nil
}

// scalarFromJSON converts a decoded JSON value into a Scalar, rejecting
// anything that is not a valid key component.
func scalarFromJSON(v any) (Scalar, error) {
	switch t := v.(type) {
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Scalar{}, errors.Newf("not a number: %v", err)
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return Scalar{}, errors.New("number has a fractional part")
		}
		i, err := t.Int64()
		if err != nil {
			return Scalar{}, errors.Newf("integer out of range: %v", err)
		}
		return Int(i), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return Scalar{}, errors.New("number has a fractional part")
		}
		return Int(int64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case nil:
		return Scalar{}, errors.New("null is not a valid key component")
	case bool:
		return Scalar{}, errors.New("boolean is not a valid key component")
	default:
		return Scalar{}, errors.Newf("%T is not a valid key component", v)
	}
}

// ApplyToRecord writes the key's scalar components back into record under the
// field names declared by spec, used when synthesizing a tombstone line.
func ApplyToRecord(spec Spec, key Key, record Record) {
	for i, f := range spec.fields {
		p := key.parts[i]
		if p.kind == kindInt {
			record[f] = json.Number(formatInt(p.i))
			continue
		}
		record[f] = p.str
	}
}
