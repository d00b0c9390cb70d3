// Package jsonltidx builds and maintains the materialized index over a
// JSONLT file: the live key -> (record, byte offset) view produced by
// replaying the file once, plus the file-state Cursor used to decide when a
// cached Index must be rebuilt (spec §4.4).
package jsonltidx

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jsonlt/jsonlt/jsonltcodec"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/jsonlterr"
)

// Entry is one live record: its canonical key, its current value, and the
// byte offset of the line that produced it (the offset of its most recent
// write, tombstone lines never appear here since Build removes the key).
type Entry struct {
	Key    jsonltkey.Key
	Record jsonltkey.Record
	Offset int64
}

// Index is the materialized, replay-built view of a table file at a point in
// time, identified by its Cursor. It is not safe for concurrent mutation; the
// owning table.Table serializes access to it under its own lock.
type Index struct {
	spec    jsonltkey.Spec
	entries map[string]Entry
	cursor  Cursor
	// end is the byte offset immediately following the last line read,
	// i.e. where the next appended line begins.
	end int64
}

// Spec returns the key specifier declared by the file's header.
func (idx *Index) Spec() jsonltkey.Spec { return idx.spec }

// Cursor returns the file-state fingerprint this index was built from.
func (idx *Index) Cursor() Cursor { return idx.cursor }

// End returns the byte offset of the end of the file as observed at build
// time, i.e. the offset the next appended line will be written at.
func (idx *Index) End() int64 { return idx.end }

// Count returns the number of live keys.
func (idx *Index) Count() int { return len(idx.entries) }

// Get looks up the current entry for key.
func (idx *Index) Get(key jsonltkey.Key) (Entry, bool) {
	e, ok := idx.entries[key.Raw()]
	return e, ok
}

// Has reports whether key currently has a live record.
func (idx *Index) Has(key jsonltkey.Key) bool {
	_, ok := idx.entries[key.Raw()]
	return ok
}

// Keys returns all live keys in canonical order (spec §3).
func (idx *Index) Keys() []jsonltkey.Key {
	out := idx.sortedEntries()
	keys := make([]jsonltkey.Key, len(out))
	for i, e := range out {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns all live entries in canonical key order.
func (idx *Index) Entries() []Entry {
	return idx.sortedEntries()
}

func (idx *Index) sortedEntries() []Entry {
	out := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out
}

// Put records a successful write of key at the given offset, updating the
// in-memory view without a full rebuild. The caller is responsible for
// advancing the cursor (Advance) to reflect the new file size/mtime/generation.
func (idx *Index) Put(key jsonltkey.Key, record jsonltkey.Record, offset, newEnd int64) {
	idx.entries[key.Raw()] = Entry{Key: key, Record: record, Offset: offset}
	idx.end = newEnd
}

// Delete removes key from the in-memory view following a successful
// tombstone append.
func (idx *Index) Delete(key jsonltkey.Key, newEnd int64) {
	delete(idx.entries, key.Raw())
	idx.end = newEnd
}

// Advance updates the cursor held by idx, used after a Table appends a line
// to the file directly (bypassing a full Build).
func (idx *Index) Advance(c Cursor) { idx.cursor = c }

// Clone returns a deep-enough copy of idx for a transaction snapshot: the
// entries map is copied so the clone's future Put/Delete calls never affect
// the original.
func (idx *Index) Clone() *Index {
	cp := &Index{
		spec:    idx.spec,
		entries: make(map[string]Entry, len(idx.entries)),
		cursor:  idx.cursor,
		end:     idx.end,
	}
	for k, v := range idx.entries {
		cp.entries[k] = v
	}
	return cp
}

// Build replays path from its header through its last complete line and
// returns the resulting Index. The caller must hold at least a shared lock on
// path for the duration of the call (spec §4.4: "Built by reading the file
// once under shared lock").
func Build(path string, profile jsonltcodec.Profile, generation uint64) (*Index, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled table path
	if err != nil {
		return nil, jsonlterr.File(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	stat, err := f.Stat()
	if err != nil {
		return nil, jsonlterr.File(err, "stat %s", path)
	}

	reader := bufio.NewReader(f)

	headerRaw, err := reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(headerRaw) == 0 {
			return nil, jsonlterr.Parse(1, "empty file: missing header line")
		}
		if err == io.EOF {
			return nil, jsonlterr.Parse(1, "truncated header line")
		}
		return nil, jsonlterr.File(err, "read header of %s", path)
	}
	spec, herr := jsonltcodec.ReadHeader(headerRaw[:len(headerRaw)-1], profile)
	if herr != nil {
		return nil, jsonlterr.ParseWrap(1, herr, "invalid header")
	}

	idx := &Index{
		spec:    spec,
		entries: make(map[string]Entry),
		end:     int64(len(headerRaw)),
	}

	lineNo := 1
	for {
		raw, rerr := reader.ReadBytes('\n')
		if len(raw) == 0 && rerr == io.EOF {
			break
		}
		lineNo++

		hasNewline := rerr == nil
		if rerr != nil && rerr != io.EOF {
			return nil, jsonlterr.File(rerr, "read %s", path)
		}
		if !hasNewline {
			if len(bytes.TrimSpace(raw)) == 0 {
				// Trailing partial line left by an interrupted append (spec §4.7):
				// tolerate it rather than reject the whole file.
				break
			}
			return nil, jsonlterr.Parse(lineNo, "truncated final line")
		}

		offset := idx.end
		idx.end += int64(len(raw))
		content := raw[:len(raw)-1]
		if len(content) == 0 {
			return nil, jsonlterr.Parse(lineNo, "blank line")
		}

		rec, derr := jsonltcodec.Decode(content, profile)
		if derr != nil {
			return nil, jsonlterr.ParseWrap(lineNo, derr, "invalid record")
		}
		if _, bad := rec[jsonltkey.HeaderField]; bad {
			return nil, jsonlterr.Parse(lineNo, "%q is reserved for the header line", jsonltkey.HeaderField)
		}
		if profile == jsonltcodec.Strict {
			for k := range rec {
				if strings.HasPrefix(k, "$") && k != jsonltkey.DeletedField {
					return nil, jsonlterr.Parse(lineNo, "unknown reserved field %q", k)
				}
			}
		}

		key, kerr := jsonltkey.Extract(spec, rec)
		if kerr != nil {
			return nil, jsonlterr.ParseWrap(lineNo, kerr, "invalid key")
		}

		if isDeleted(rec) {
			delete(idx.entries, key.Raw())
		} else {
			idx.entries[key.Raw()] = Entry{Key: key, Record: rec, Offset: offset}
		}
	}

	idx.cursor = Cursor{Size: stat.Size(), ModTime: stat.ModTime(), Generation: generation}
	return idx, nil
}

// isDeleted reports whether rec is a tombstone line: any record carrying
// "$deleted": true, whatever other fields it also has.
func isDeleted(rec jsonltkey.Record) bool {
	v, ok := rec[jsonltkey.DeletedField]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
