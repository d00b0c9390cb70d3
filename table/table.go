// Package table implements the JSONLT Table: the file-backed, mutex-guarded
// engine that owns the materialized index, the advisory lock, and every
// read/write/compaction operation a caller sees (spec §4.5).
package table

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jsonlt/jsonlt/config"
	"github.com/jsonlt/jsonlt/jsonltcodec"
	"github.com/jsonlt/jsonlt/jsonltidx"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/jsonlterr"
	"github.com/jsonlt/jsonlt/lock"
	"github.com/jsonlt/jsonlt/lock/flock"
	"github.com/jsonlt/jsonlt/utils"
)

// Table is a single open JSONLT file. All exported methods are safe for
// concurrent use by multiple goroutines: an internal mutex serializes access
// to the cached index (spec §5 "Within one Table instance, operations are
// serialized by an internal mutex").
type Table struct {
	path      string
	opts      config.Options
	locker    lock.Locker
	mu        sync.Mutex
	idx       *jsonltidx.Index
	gen       uint64
	txnActive bool
}

// Open opens path, optionally validating its header against spec. If path
// does not exist it is created with a freshly written header for spec (which
// must then be non-nil). If path exists and spec is non-nil, the file's
// declared key specifier must match it exactly.
func Open(path string, spec *jsonltkey.Spec, opts config.Options) (*Table, error) {
	if err := utils.EnsureDirs(dirOf(path)); err != nil {
		return nil, err
	}

	t := &Table{path: path, opts: opts, locker: flock.New(path)}

	exists := utils.ValidFile(path) || fileExists(path)
	ctx := context.Background()
	if !exists {
		if spec == nil {
			return nil, jsonlterr.InvalidKey(nil, "cannot create %s without a key specifier", path)
		}
		if err := withLock(ctx, opts, t.locker, lock.Exclusive, func() error {
			return writeNewFile(path, *spec)
		}); err != nil {
			return nil, err
		}
	}

	if err := withLock(ctx, opts, t.locker, lock.Shared, func() error {
		idx, err := jsonltidx.Build(path, opts.Profile(), t.gen)
		if err != nil {
			return err
		}
		if spec != nil && !idx.Spec().Equal(*spec) {
			return jsonlterr.InvalidKey(nil, "table %s has key %s, requested %s", path, idx.Spec(), *spec)
		}
		t.idx = idx
		return nil
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// FromRecords atomically creates a new file at path with the given header and
// an initial batch of records, written in canonical key order. Fails if path
// already exists with non-empty content, or if the batch contains a
// duplicate key (spec §9 open question, resolved in favor of invalid-key).
func FromRecords(path string, spec jsonltkey.Spec, records []jsonltkey.Record, opts config.Options) (*Table, error) {
	if utils.ValidFile(path) {
		return nil, jsonlterr.File(os.ErrExist, "table file %s already has content", path)
	}
	if err := utils.EnsureDirs(dirOf(path)); err != nil {
		return nil, err
	}

	type keyed struct {
		key jsonltkey.Key
		rec jsonltkey.Record
	}
	items := make([]keyed, len(records))
	seen := make(map[string]jsonltkey.Key, len(records))
	for i, rec := range records {
		k, err := jsonltkey.Extract(spec, rec)
		if err != nil {
			return nil, err
		}
		raw := k.Raw()
		if _, dup := seen[raw]; dup {
			return nil, jsonlterr.InvalidKey(nil, "duplicate key in initial batch")
		}
		seen[raw] = k
		items[i] = keyed{key: k, rec: rec}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].key.Compare(items[j].key) < 0 })

	header, err := jsonltcodec.WriteHeader(spec)
	if err != nil {
		return nil, err
	}
	buf := header
	for _, it := range items {
		line, err := jsonltcodec.Encode(it.rec)
		if err != nil {
			return nil, err
		}
		buf = append(buf, line...)
	}

	t := &Table{path: path, opts: opts, locker: flock.New(path)}
	if err := withLock(context.Background(), opts, t.locker, lock.Exclusive, func() error {
		return utils.AtomicWriteFile(path, buf, 0o640)
	}); err != nil {
		return nil, err
	}

	if err := withLock(context.Background(), opts, t.locker, lock.Shared, func() error {
		idx, err := jsonltidx.Build(path, opts.Profile(), t.gen)
		if err != nil {
			return err
		}
		t.idx = idx
		return nil
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the table's backing file path.
func (t *Table) Path() string { return t.path }

// Options returns the table's construction options.
func (t *Table) Options() config.Options { return t.opts }

// Locker returns the table's advisory lock, used by the txn package to
// acquire the exclusive lock for a commit.
func (t *Table) Locker() lock.Locker { return t.locker }

// Spec returns the key specifier declared by the table's header.
func (t *Table) Spec() jsonltkey.Spec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idx.Spec()
}

// Get returns the current record for key, and whether it exists.
func (t *Table) Get(ctx context.Context, key jsonltkey.Key) (jsonltkey.Record, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return nil, false, err
	}
	e, ok := t.idx.Get(key)
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(e.Record), true, nil
}

// Has reports whether key currently has a live record.
func (t *Table) Has(ctx context.Context, key jsonltkey.Key) (bool, error) {
	_, ok, err := t.Get(ctx, key)
	return ok, err
}

// Count returns the number of live keys.
func (t *Table) Count(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return 0, err
	}
	return t.idx.Count(), nil
}

// All returns a snapshot of every live record, in canonical key order.
func (t *Table) All(ctx context.Context) ([]jsonltkey.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return nil, err
	}
	entries := t.idx.Entries()
	out := make([]jsonltkey.Record, len(entries))
	for i, e := range entries {
		out[i] = cloneRecord(e.Record)
	}
	return out, nil
}

// Keys returns a snapshot of every live key, in canonical order.
func (t *Table) Keys(ctx context.Context) ([]jsonltkey.Key, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return t.idx.Keys(), nil
}

// Item pairs a canonical key with its current record.
type Item struct {
	Key    jsonltkey.Key
	Record jsonltkey.Record
}

// Items returns a snapshot of every live (key, record) pair, in canonical
// key order.
func (t *Table) Items(ctx context.Context) ([]Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return nil, err
	}
	entries := t.idx.Entries()
	out := make([]Item, len(entries))
	for i, e := range entries {
		out[i] = Item{Key: e.Key, Record: cloneRecord(e.Record)}
	}
	return out, nil
}

// Find returns every live record for which predicate holds, in canonical key
// order, stopping once limit matches are found (limit <= 0 means unbounded).
func (t *Table) Find(ctx context.Context, predicate func(jsonltkey.Record) bool, limit int) ([]jsonltkey.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.refreshLocked(ctx); err != nil {
		return nil, err
	}
	var out []jsonltkey.Record
	for _, e := range t.idx.Entries() {
		if predicate(e.Record) {
			out = append(out, cloneRecord(e.Record))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// FindOne returns the first live record for which predicate holds.
func (t *Table) FindOne(ctx context.Context, predicate func(jsonltkey.Record) bool) (jsonltkey.Record, bool, error) {
	out, err := t.Find(ctx, predicate, 1)
	if err != nil || len(out) == 0 {
		return nil, false, err
	}
	return out[0], true, nil
}

// BeginTxn marks a transaction as active on t, for use by the txn package.
// Fails with a transaction-state error if one is already open (spec §4.6:
// "Nested transactions are not supported").
func (t *Table) BeginTxn() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.txnActive {
		return jsonlterr.TransactionState("a transaction is already open on this table")
	}
	t.txnActive = true
	return nil
}

// EndTxn clears the active-transaction marker set by BeginTxn, called on
// both commit and abort.
func (t *Table) EndTxn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.txnActive = false
}

// Reload rebuilds the cached index from disk immediately, under a shared
// lock, regardless of whether the cursor looks unchanged.
func (t *Table) Reload(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return withLock(ctx, t.opts, t.locker, lock.Shared, t.rebuildIndexLocked)
}

// refreshLocked implements the auto-refresh policy (spec §4.4) for callers
// that have not already acquired the file lock themselves: rebuild the index
// under a freshly-acquired shared lock iff the on-disk (size, mtime) no
// longer matches the cached cursor. Must be called with t.mu held.
func (t *Table) refreshLocked(ctx context.Context) error {
	if !t.staleLocked() {
		return nil
	}
	return withLock(ctx, t.opts, t.locker, lock.Shared, t.rebuildIndexLocked)
}

// refreshIfStaleNoLock is refreshLocked's counterpart for callers that
// already hold t.locker themselves (Put, Delete, Compact, CommitWrites): it
// rebuilds in place without acquiring the lock again, since a single Lock
// value only supports one outstanding acquisition at a time (lock/flock).
// Must be called with t.mu held and t.locker held in the appropriate mode.
func (t *Table) refreshIfStaleNoLock() error {
	if !t.staleLocked() {
		return nil
	}
	return t.rebuildIndexLocked()
}

// staleLocked reports whether the on-disk file no longer matches the cached
// cursor. Must be called with t.mu held.
func (t *Table) staleLocked() bool {
	info, err := os.Stat(t.path)
	if err != nil {
		return true
	}
	current := jsonltidx.Cursor{Size: info.Size(), ModTime: info.ModTime(), Generation: t.gen}
	return t.idx.Cursor().Stale(current)
}

// rebuildIndexLocked rebuilds the cached index from disk unconditionally.
// Must be called with t.mu held and the file lock already held by the caller
// in whatever mode is appropriate for the read.
func (t *Table) rebuildIndexLocked() error {
	idx, err := jsonltidx.Build(t.path, t.opts.Profile(), t.gen)
	if err != nil {
		return err
	}
	t.idx = idx
	return nil
}

func cloneRecord(r jsonltkey.Record) jsonltkey.Record {
	out := make(jsonltkey.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirOf(path string) string { return filepath.Dir(path) }

// withLock applies opts.LockTimeout as a context deadline, if set (spec §4.1
// "an optional deadline"), then acquires l in mode around fn. A zero timeout
// blocks indefinitely.
func withLock(ctx context.Context, opts config.Options, l lock.Locker, mode lock.Mode, fn func() error) error {
	if opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.LockTimeout)
		defer cancel()
	}
	return lock.WithLock(ctx, l, mode, fn)
}

func writeNewFile(path string, spec jsonltkey.Spec) error {
	header, err := jsonltcodec.WriteHeader(spec)
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(path, header, 0o640)
}
