package table

import (
	"context"
	"os"

	"github.com/jsonlt/jsonlt/jsonltcodec"
	"github.com/jsonlt/jsonlt/jsonltidx"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/jsonlterr"
	"github.com/jsonlt/jsonlt/lock"
)

// Put extracts the table's key from record and writes it. An insert and an
// update are the same operation on the wire — the only difference is whether
// the key already existed (spec §4.5).
func (t *Table) Put(ctx context.Context, record jsonltkey.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, err := jsonltkey.Extract(t.idx.Spec(), record)
	if err != nil {
		return err
	}
	line, err := t.encodeLine(record)
	if err != nil {
		return err
	}

	return withLock(ctx, t.opts, t.locker, lock.Exclusive, func() error {
		if err := t.refreshIfStaleNoLock(); err != nil {
			return err
		}
		offsets, newEnd, err := t.appendLinesLocked([][]byte{line})
		if err != nil {
			return err
		}
		t.idx.Put(key, record, offsets[0], newEnd)
		return t.advanceCursorLocked()
	})
}

// Delete removes key, appending a tombstone line. Fails with a missing-key
// error if key has no live record (spec §4.5).
func (t *Table) Delete(ctx context.Context, key jsonltkey.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return withLock(ctx, t.opts, t.locker, lock.Exclusive, func() error {
		if err := t.refreshIfStaleNoLock(); err != nil {
			return err
		}
		if !t.idx.Has(key) {
			return jsonlterr.MissingKey(key)
		}
		tombstone := tombstoneRecord(t.idx.Spec(), key)
		line, err := t.encodeLine(tombstone)
		if err != nil {
			return err
		}
		_, newEnd, err := t.appendLinesLocked([][]byte{line})
		if err != nil {
			return err
		}
		t.idx.Delete(key, newEnd)
		return t.advanceCursorLocked()
	})
}

// encodeLine renders record and enforces the max-line-length guard, if set
// (spec §5 "Size limits": "Exceeding either on a write fails ... before any
// bytes hit disk").
func (t *Table) encodeLine(record jsonltkey.Record) ([]byte, error) {
	line, err := jsonltcodec.Encode(record)
	if err != nil {
		return nil, err
	}
	if t.opts.MaxLineBytes > 0 && len(line) > t.opts.MaxLineBytes {
		return nil, jsonlterr.Limit("encoded line is %d bytes, exceeds limit of %d", len(line), t.opts.MaxLineBytes)
	}
	return line, nil
}

// appendLinesLocked appends lines contiguously to the table file, returning
// the byte offset each line was written at and the file's new logical end.
// Caller must hold t.mu and the exclusive lock.
func (t *Table) appendLinesLocked(lines [][]byte) ([]int64, int64, error) {
	var total int64
	for _, l := range lines {
		total += int64(len(l))
	}
	if t.opts.MaxFileBytes > 0 && t.idx.End()+total > t.opts.MaxFileBytes {
		return nil, 0, jsonlterr.Limit("append would grow %s past %d bytes", t.path, t.opts.MaxFileBytes)
	}

	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path is caller-controlled table path
	if err != nil {
		return nil, 0, jsonlterr.File(err, "open %s for append", t.path)
	}
	defer f.Close() //nolint:errcheck

	offsets := make([]int64, len(lines))
	offset := t.idx.End()
	for i, l := range lines {
		offsets[i] = offset
		if _, err := f.Write(l); err != nil {
			return nil, 0, jsonlterr.File(err, "append to %s", t.path)
		}
		offset += int64(len(l))
	}
	if err := f.Sync(); err != nil {
		return nil, 0, jsonlterr.File(err, "sync %s", t.path)
	}
	return offsets, offset, nil
}

// advanceCursorLocked refreshes the table's generation and file-state cursor
// after a successful append. Caller must hold t.mu.
func (t *Table) advanceCursorLocked() error {
	info, err := os.Stat(t.path)
	if err != nil {
		return jsonlterr.File(err, "stat %s", t.path)
	}
	t.gen++
	t.idx.Advance(jsonltidx.Cursor{Size: info.Size(), ModTime: info.ModTime(), Generation: t.gen})
	return nil
}

// tombstoneRecord builds the tombstone line for key: its key fields plus
// "$deleted": true (spec §6).
func tombstoneRecord(spec jsonltkey.Spec, key jsonltkey.Key) jsonltkey.Record {
	rec := make(jsonltkey.Record, spec.Arity()+1)
	jsonltkey.ApplyToRecord(spec, key, rec)
	rec[jsonltkey.DeletedField] = true
	return rec
}
