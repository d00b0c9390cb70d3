package container

import (
	"context"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/jsonlt/jsonlt/config"
	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/table"
)

func newContainer(t *testing.T) *Container {
	t.Helper()
	spec, err := jsonltkey.SingleField("id")
	assert.NilError(t, err)
	tbl, err := table.Open(filepath.Join(t.TempDir(), "c.jsonlt"), &spec, config.DefaultOptions())
	assert.NilError(t, err)
	return New(tbl)
}

func TestSetGetContainsLen(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)

	assert.NilError(t, c.Set(ctx, jsonltkey.Record{"id": "a", "v": 1}))
	ok, err := c.Contains(ctx, jsonltkey.Of(jsonltkey.String("a")))
	assert.NilError(t, err)
	assert.Assert(t, ok)

	n, err := c.Len(ctx)
	assert.NilError(t, err)
	assert.Equal(t, n, 1)
}

func TestPopReturnsFalseForMissingKey(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)

	_, ok, err := c.Pop(ctx, jsonltkey.Of(jsonltkey.String("missing")))
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}

func TestPopRemovesExistingKey(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)
	key := jsonltkey.Of(jsonltkey.String("a"))
	assert.NilError(t, c.Set(ctx, jsonltkey.Record{"id": "a", "v": 1}))

	rec, ok, err := c.Pop(ctx, key)
	assert.NilError(t, err)
	assert.Assert(t, ok)
	assert.Equal(t, rec["v"], 1)

	ok, err = c.Contains(ctx, key)
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}

func TestSetDefaultWritesOnlyWhenAbsent(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)
	key := jsonltkey.Of(jsonltkey.String("a"))

	rec, err := c.SetDefault(ctx, key, jsonltkey.Record{"id": "a", "v": 1})
	assert.NilError(t, err)
	assert.Equal(t, rec["v"], 1)

	rec, err = c.SetDefault(ctx, key, jsonltkey.Record{"id": "a", "v": 99})
	assert.NilError(t, err)
	assert.Equal(t, rec["v"], 1, "SetDefault must not overwrite an existing record")
}

func TestUpdateAppliesEachRecord(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)

	assert.NilError(t, c.Update(ctx, []jsonltkey.Record{
		{"id": "a", "v": 1},
		{"id": "b", "v": 2},
	}))

	n, err := c.Len(ctx)
	assert.NilError(t, err)
	assert.Equal(t, n, 2)
}
