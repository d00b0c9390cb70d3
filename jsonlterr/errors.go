// Package jsonlterr defines the single error taxonomy shared by every JSONLT
// package. All core failures are an *Error with one of the fixed Kinds below;
// nothing in the core discards or retries an error, it is always propagated
// wrapped with enough context to identify the offending line, key, or path.
package jsonlterr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies a JSONLT error. See spec §7.
type Kind int

const (
	// KindParse marks a malformed file: bad header, non-UTF-8 bytes, invalid
	// JSON line, duplicate keys in a line, or a record missing its key fields.
	KindParse Kind = iota + 1
	// KindInvalidKey marks a key value or shape that does not conform to K.
	KindInvalidKey
	// KindFile marks an OS-level I/O failure.
	KindFile
	// KindLock marks a failure to acquire the advisory lock within the deadline.
	KindLock
	// KindLimit marks an encoded line or file exceeding a configured size guard.
	KindLimit
	// KindTransactionState marks use of a committed/aborted/nested transaction.
	KindTransactionState
	// KindConflict marks a commit aborted by a concurrent mutation.
	KindConflict
	// KindMissingKey marks delete or strict-get on a non-existent key.
	KindMissingKey
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindInvalidKey:
		return "invalid-key"
	case KindFile:
		return "file"
	case KindLock:
		return "lock"
	case KindLimit:
		return "limit"
	case KindTransactionState:
		return "transaction-state"
	case KindConflict:
		return "conflict"
	case KindMissingKey:
		return "missing-key"
	default:
		return "unknown"
	}
}

// Error is the root error type for the JSONLT core. Failures surfaced by
// table, txn, jsonltidx, and lock/flock are (or wrap) an *Error. jsonltcodec
// itself returns plain errors, which jsonltidx wraps as KindParse.
type Error struct {
	Kind Kind
	// Line is the 1-based line number for KindParse errors (0 when the line
	// is not known), 0 for every other kind.
	Line int
	// Key is the offending canonical key for KindConflict/KindMissingKey
	// errors; for KindInvalidKey it is set only when the caller supplies one.
	// Nil otherwise.
	Key   any
	cause error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindParse && e.Line > 0:
		return fmt.Sprintf("jsonlt: %s (line %d): %v", e.Kind, e.Line, e.cause)
	case e.Key != nil:
		return fmt.Sprintf("jsonlt: %s (key %v): %v", e.Kind, e.Key, e.cause)
	default:
		return fmt.Sprintf("jsonlt: %s: %v", e.Kind, e.cause)
	}
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err is a JSONLT error of the given kind.
func Is(err error, kind Kind) bool {
	var je *Error
	if !errors.As(err, &je) {
		return false
	}
	return je.Kind == kind
}

func wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// Parse builds a KindParse error citing the 1-based line number.
func Parse(line int, format string, args ...any) error {
	return &Error{Kind: KindParse, Line: line, cause: errors.Newf(format, args...)}
}

// ParseWrap wraps an existing error as KindParse, citing the line number.
func ParseWrap(line int, cause error, format string, args ...any) error {
	return &Error{Kind: KindParse, Line: line, cause: errors.Wrapf(cause, format, args...)}
}

// InvalidKey builds a KindInvalidKey error, optionally naming the offending key.
func InvalidKey(key any, format string, args ...any) error {
	return &Error{Kind: KindInvalidKey, Key: key, cause: errors.Newf(format, args...)}
}

// File wraps an OS-level failure as KindFile.
func File(cause error, format string, args ...any) error {
	return wrap(KindFile, errors.Wrapf(cause, format, args...))
}

// Lock wraps a lock-acquisition failure as KindLock.
func Lock(cause error, format string, args ...any) error {
	return wrap(KindLock, errors.Wrapf(cause, format, args...))
}

// Limit builds a KindLimit error (line or file size guard exceeded).
func Limit(format string, args ...any) error {
	return wrap(KindLimit, errors.Newf(format, args...))
}

// TransactionState builds a KindTransactionState error.
func TransactionState(format string, args ...any) error {
	return wrap(KindTransactionState, errors.Newf(format, args...))
}

// Conflict builds a KindConflict error naming the offending key.
func Conflict(key any) error {
	return &Error{Kind: KindConflict, Key: key, cause: errors.Newf("key %v modified since snapshot", key)}
}

// MissingKey builds a KindMissingKey error naming the offending key.
func MissingKey(key any) error {
	return &Error{Kind: KindMissingKey, Key: key, cause: errors.Newf("key %v not found", key)}
}
