// Package txn implements snapshot-isolated transactions over a table.Table
// (spec §4.6). A Transaction holds no lock between creation and commit; it
// acquires the table's exclusive lock only during Commit, so a long-lived
// transaction never blocks readers or other writers (spec §5).
package txn

import (
	"context"
	"sort"
	"sync"

	"github.com/jsonlt/jsonlt/jsonltidx"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/jsonlterr"
	"github.com/jsonlt/jsonlt/table"
)

type state int

const (
	open state = iota
	committed
	aborted
)

// Transaction is a snapshot-isolated view over a table.Table, with a
// deferred, conflict-checked commit.
type Transaction struct {
	mu       sync.Mutex
	t        *table.Table
	snapshot *jsonltidx.Index
	reads    map[string]jsonltkey.Key
	writes   map[string]table.WriteIntent
	state    state
}

// Begin opens a new transaction against t, capturing its current index as
// the transaction's snapshot. Fails with a transaction-state error if t
// already has an open transaction (spec §4.6: "Nested transactions are not
// supported").
func Begin(ctx context.Context, t *table.Table) (*Transaction, error) {
	if err := t.BeginTxn(); err != nil {
		return nil, err
	}
	snap, err := t.Snapshot(ctx)
	if err != nil {
		t.EndTxn()
		return nil, err
	}
	return &Transaction{
		t:        t,
		snapshot: snap,
		reads:    make(map[string]jsonltkey.Key),
		writes:   make(map[string]table.WriteIntent),
	}, nil
}

// Get reads key from the transaction's overlay view: the write buffer masks
// the snapshot. Every consulted key is recorded in the read-set.
func (tx *Transaction) Get(key jsonltkey.Key) (jsonltkey.Record, bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return nil, false, err
	}
	raw := key.Raw()
	tx.reads[raw] = key

	if w, ok := tx.writes[raw]; ok {
		return w.Record, w.Record != nil, nil
	}
	if e, ok := tx.snapshot.Get(key); ok {
		return e.Record, true, nil
	}
	return nil, false, nil
}

// Has is the boolean form of Get.
func (tx *Transaction) Has(key jsonltkey.Key) (bool, error) {
	_, ok, err := tx.Get(key)
	return ok, err
}

// Put stages a write. Repeated writes to the same key coalesce, last wins.
func (tx *Transaction) Put(record jsonltkey.Record) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	key, err := jsonltkey.Extract(tx.snapshot.Spec(), record)
	if err != nil {
		return err
	}
	tx.writes[key.Raw()] = table.WriteIntent{Key: key, Record: record}
	return nil
}

// Delete stages a tombstone for key. A delete of a key absent from both the
// snapshot and the write buffer is legal and recorded as a tombstone intent
// (spec §4.6).
func (tx *Transaction) Delete(key jsonltkey.Key) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.writes[key.Raw()] = table.WriteIntent{Key: key, Record: nil}
	return nil
}

// Keys returns the overlay view's live keys in canonical order. Iteration
// registers every snapshot key as read.
func (tx *Transaction) Keys() ([]jsonltkey.Key, error) {
	items, err := tx.Items()
	if err != nil {
		return nil, err
	}
	out := make([]jsonltkey.Key, len(items))
	for i, it := range items {
		out[i] = it.Key
	}
	return out, nil
}

// All returns the overlay view's live records in canonical key order.
func (tx *Transaction) All() ([]jsonltkey.Record, error) {
	items, err := tx.Items()
	if err != nil {
		return nil, err
	}
	out := make([]jsonltkey.Record, len(items))
	for i, it := range items {
		out[i] = it.Record
	}
	return out, nil
}

// Count returns the number of live keys in the overlay view.
func (tx *Transaction) Count() (int, error) {
	items, err := tx.Items()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Items returns the overlay view as (key, record) pairs in canonical key
// order: staged writes mask the snapshot, snapshot records mask nothing else.
// Every snapshot key visited is recorded as read; keys that exist only in the
// write buffer are not added to the read-set.
func (tx *Transaction) Items() ([]table.Item, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}

	merged := make(map[string]jsonltkey.Key, tx.snapshot.Count()+len(tx.writes))
	live := make(map[string]jsonltkey.Record, tx.snapshot.Count()+len(tx.writes))
	for _, e := range tx.snapshot.Entries() {
		raw := e.Key.Raw()
		merged[raw] = e.Key
		live[raw] = e.Record
		tx.reads[raw] = e.Key
	}
	for raw, w := range tx.writes {
		merged[raw] = w.Key
		if w.Record == nil {
			delete(live, raw)
		} else {
			live[raw] = w.Record
		}
	}

	out := make([]table.Item, 0, len(live))
	for raw, rec := range live {
		out = append(out, table.Item{Key: merged[raw], Record: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out, nil
}

// Commit acquires the table's exclusive lock, refreshes the cursor, and
// performs first-committer-wins conflict detection: if any key in the
// write-set was mutated on disk since the snapshot was taken, Commit fails
// with a conflict error naming that key and no state changes. Otherwise every
// buffered write is appended in sorted-key order as one contiguous group and
// the table's index is updated in place (spec §4.6).
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if len(tx.writes) == 0 {
		tx.state = committed
		tx.t.EndTxn()
		return nil
	}
	if err := tx.t.CommitWrites(ctx, tx.snapshot.Cursor(), tx.writes); err != nil {
		return err
	}
	tx.state = committed
	tx.t.EndTxn()
	return nil
}

// Abort discards the transaction's buffers without touching the file.
func (tx *Transaction) Abort() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.state = aborted
	tx.writes = nil
	tx.reads = nil
	tx.t.EndTxn()
	return nil
}

func (tx *Transaction) checkOpen() error {
	switch tx.state {
	case committed:
		return jsonlterr.TransactionState("transaction already committed")
	case aborted:
		return jsonlterr.TransactionState("transaction already aborted")
	default:
		return nil
	}
}
