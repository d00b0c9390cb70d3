package table

import (
	"context"
	"os"

	"github.com/jsonlt/jsonlt/jsonltcodec"
	"github.com/jsonlt/jsonlt/jsonltidx"
	"github.com/jsonlt/jsonlt/jsonlterr"
	"github.com/jsonlt/jsonlt/lock"
	"github.com/jsonlt/jsonlt/utils"
)

// Compact rewrites the file to header + live records in canonical key order,
// via a sibling temp file atomically renamed over the original (spec §4.5,
// §9 "Atomic compaction"). Tombstones and superseded records vanish.
func (t *Table) Compact(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return withLock(ctx, t.opts, t.locker, lock.Exclusive, func() error {
		if err := t.refreshIfStaleNoLock(); err != nil {
			return err
		}
		return t.rewriteLocked()
	})
}

// TryCompact attempts Compact without blocking: if the exclusive lock is
// currently held by another operation, it returns (false, nil) rather than
// waiting. Used by a maintenance runner sweeping many tables, where a busy
// table is simply skipped and retried on the next pass.
func (t *Table) TryCompact(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ok, err := t.locker.TryLock(ctx, lock.Exclusive)
	if err != nil || !ok {
		return false, err
	}
	defer t.locker.Unlock(ctx) //nolint:errcheck

	if err := t.refreshIfStaleNoLock(); err != nil {
		return false, err
	}
	if err := t.rewriteLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Clear is the compact equivalent with zero records: just the header.
func (t *Table) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return withLock(ctx, t.opts, t.locker, lock.Exclusive, func() error {
		if err := t.refreshIfStaleNoLock(); err != nil {
			return err
		}
		spec := t.idx.Spec()
		header, err := jsonltcodec.WriteHeader(spec)
		if err != nil {
			return err
		}
		if err := utils.AtomicWriteFile(t.path, header, 0o640); err != nil {
			return err
		}
		return t.reindexAfterRewriteLocked()
	})
}

// rewriteLocked emits header + every live entry in canonical order to a fresh
// buffer and atomically replaces the file with it. Caller must hold t.mu and
// the exclusive lock.
func (t *Table) rewriteLocked() error {
	spec := t.idx.Spec()
	header, err := jsonltcodec.WriteHeader(spec)
	if err != nil {
		return err
	}
	buf := header
	for _, e := range t.idx.Entries() {
		line, err := jsonltcodec.Encode(e.Record)
		if err != nil {
			return err
		}
		buf = append(buf, line...)
	}
	if err := utils.AtomicWriteFile(t.path, buf, 0o640); err != nil {
		return err
	}
	return t.reindexAfterRewriteLocked()
}

// reindexAfterRewriteLocked rebuilds the cursor and in-memory index from the
// file just written, so offsets recorded in the index match the rewritten
// file rather than the pre-compaction one.
func (t *Table) reindexAfterRewriteLocked() error {
	info, err := os.Stat(t.path)
	if err != nil {
		return jsonlterr.File(err, "stat %s", t.path)
	}
	t.gen++
	idx, err := jsonltidx.Build(t.path, t.opts.Profile(), t.gen)
	if err != nil {
		return err
	}
	idx.Advance(jsonltidx.Cursor{Size: info.Size(), ModTime: info.ModTime(), Generation: t.gen})
	t.idx = idx
	return nil
}
