package table

import (
	"bufio"
	"context"
	"io"
	"os"
	"sort"

	"github.com/jsonlt/jsonlt/jsonltcodec"
	"github.com/jsonlt/jsonlt/jsonltidx"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/jsonlterr"
	"github.com/jsonlt/jsonlt/lock"
)

// WriteIntent is one buffered mutation in a transaction's write set: Record
// nil means a delete (tombstone) of Key, non-nil means a put.
type WriteIntent struct {
	Key    jsonltkey.Key
	Record jsonltkey.Record
}

// CommitWrites applies a transaction's buffered writes to t, used by the txn
// package to implement Transaction.Commit (spec §4.6). snapshot is the
// cursor the transaction was opened against; writes is keyed by
// jsonltkey.Key.Raw(). Returns a jsonlterr KindConflict error naming the
// offending key if any written key was mutated on disk since snapshot.
func (t *Table) CommitWrites(ctx context.Context, snapshot jsonltidx.Cursor, writes map[string]WriteIntent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return withLock(ctx, t.opts, t.locker, lock.Exclusive, func() error {
		if err := t.refreshIfStaleNoLock(); err != nil {
			return err
		}

		if t.idx.Cursor().Size > snapshot.Size {
			touched, err := touchedKeysSince(t.path, t.opts.Profile(), snapshot.Size)
			if err != nil {
				return err
			}
			if key, conflicted := firstConflict(writes, touched); conflicted {
				return jsonlterr.Conflict(key)
			}
		}

		ordered := make([]WriteIntent, 0, len(writes))
		for _, w := range writes {
			ordered = append(ordered, w)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key.Compare(ordered[j].Key) < 0 })

		lines := make([][]byte, len(ordered))
		for i, w := range ordered {
			var rec jsonltkey.Record
			if w.Record != nil {
				rec = w.Record
			} else {
				rec = tombstoneRecord(t.idx.Spec(), w.Key)
			}
			line, err := t.encodeLine(rec)
			if err != nil {
				return err
			}
			lines[i] = line
		}

		offsets, newEnd, err := t.appendLinesLocked(lines)
		if err != nil {
			return err
		}
		for i, w := range ordered {
			if w.Record != nil {
				t.idx.Put(w.Key, w.Record, offsets[i], newEnd)
			} else {
				t.idx.Delete(w.Key, newEnd)
			}
		}
		return t.advanceCursorLocked()
	})
}

// Snapshot returns a clone of the current index along with its cursor, for a
// transaction's initial view. Refreshes the cached index first if stale.
func (t *Table) Snapshot(ctx context.Context) (*jsonltidx.Index, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return t.idx.Clone(), nil
}

// firstConflict returns the canonically-smallest key present in both writes
// and touched, for a deterministic conflict report.
func firstConflict(writes map[string]WriteIntent, touched map[string]jsonltkey.Key) (jsonltkey.Key, bool) {
	var found jsonltkey.Key
	ok := false
	for raw, w := range writes {
		if _, hit := touched[raw]; hit {
			if !ok || w.Key.Compare(found) < 0 {
				found = w.Key
				ok = true
			}
		}
	}
	return found, ok
}

// touchedKeysSince scans every line appended after byte offset since and
// returns the set of keys they reference (spec §4.6: "Mutation is detected by
// re-reading lines appended since the snapshot cursor's size").
func touchedKeysSince(path string, profile jsonltcodec.Profile, since int64) (map[string]jsonltkey.Key, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled table path
	if err != nil {
		return nil, jsonlterr.File(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Seek(since, io.SeekStart); err != nil {
		return nil, jsonlterr.File(err, "seek %s", path)
	}

	spec, err := peekHeaderSpec(path, profile)
	if err != nil {
		return nil, err
	}

	touched := make(map[string]jsonltkey.Key)
	reader := bufio.NewReader(f)
	for {
		raw, rerr := reader.ReadBytes('\n')
		if len(raw) == 0 && rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.EOF {
			return nil, jsonlterr.File(rerr, "read %s", path)
		}
		content := raw
		if rerr == nil {
			content = raw[:len(raw)-1]
		}
		if len(content) == 0 {
			break
		}
		rec, derr := jsonltcodec.Decode(content, profile)
		if derr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, jsonlterr.ParseWrap(0, derr, "decode tail of %s", path)
		}
		key, kerr := jsonltkey.Extract(spec, rec)
		if kerr != nil {
			return nil, kerr
		}
		touched[key.Raw()] = key
		if rerr == io.EOF {
			break
		}
	}
	return touched, nil
}

// peekHeaderSpec re-reads the file's header to get the key specifier for
// decoding tail lines, independent of any in-progress rebuild.
func peekHeaderSpec(path string, profile jsonltcodec.Profile) (jsonltkey.Spec, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled table path
	if err != nil {
		return jsonltkey.Spec{}, jsonlterr.File(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck
	reader := bufio.NewReader(f)
	raw, err := reader.ReadBytes('\n')
	if err != nil {
		return jsonltkey.Spec{}, jsonlterr.Parse(1, "truncated or missing header")
	}
	return jsonltcodec.ReadHeader(raw[:len(raw)-1], profile)
}
