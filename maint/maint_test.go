package maint

import (
	"context"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/jsonlt/jsonlt/config"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/lock"
	"github.com/jsonlt/jsonlt/table"
)

func newTable(t *testing.T, name string) *table.Table {
	t.Helper()
	spec, err := jsonltkey.SingleField("id")
	assert.NilError(t, err)
	tbl, err := table.Open(filepath.Join(t.TempDir(), name), &spec, config.DefaultOptions())
	assert.NilError(t, err)
	return tbl
}

func TestRunCompactsAllRegisteredTables(t *testing.T) {
	ctx := context.Background()
	a := newTable(t, "a.jsonlt")
	b := newTable(t, "b.jsonlt")
	assert.NilError(t, a.Put(ctx, jsonltkey.Record{"id": "x"}))
	assert.NilError(t, a.Delete(ctx, jsonltkey.Of(jsonltkey.String("x"))))
	assert.NilError(t, b.Put(ctx, jsonltkey.Record{"id": "y"}))

	r := New()
	r.Register("a", a)
	r.Register("b", b)

	results, err := r.Run(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 2)
	for _, res := range results {
		assert.NilError(t, res.Err)
		assert.Assert(t, res.Compacted)
	}
}

func TestRunSkipsTableHeldByAnotherLocker(t *testing.T) {
	ctx := context.Background()
	a := newTable(t, "a.jsonlt")

	held, err := a.Locker().TryLock(ctx, lock.Exclusive)
	assert.NilError(t, err)
	assert.Assert(t, held)
	defer a.Locker().Unlock(ctx) //nolint:errcheck

	r := New()
	r.Register("a", a)

	results, err := r.Run(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 1)
	assert.NilError(t, results[0].Err)
	assert.Assert(t, !results[0].Compacted)
}

func TestRunSkipsBusyTableWithoutAbortingOthers(t *testing.T) {
	ctx := context.Background()
	a := newTable(t, "a.jsonlt")
	b := newTable(t, "b.jsonlt")
	assert.NilError(t, b.Put(ctx, jsonltkey.Record{"id": "y"}))

	held, err := a.Locker().TryLock(ctx, lock.Exclusive)
	assert.NilError(t, err)
	assert.Assert(t, held)
	defer a.Locker().Unlock(ctx) //nolint:errcheck

	r := New()
	r.Register("a", a)
	r.Register("b", b)

	results, err := r.Run(ctx)
	assert.Assert(t, err == nil, "a busy target is skipped, not an error")
	assert.Equal(t, len(results), 2)
}
