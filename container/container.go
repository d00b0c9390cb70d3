// Package container provides mapping-sugar convenience methods over a
// table.Table: indexing, membership, iteration, pop, setdefault, and update.
// It is pure delegation to Table's get/put/delete and introduces no distinct
// semantics (spec §9 "Container sugar → core API").
package container

import (
	"context"

	"github.com/jsonlt/jsonlt/jsonltkey"
	"github.com/jsonlt/jsonlt/table"
)

// Container wraps a table.Table with dict-like sugar.
type Container struct {
	t *table.Table
}

// New wraps t in a Container.
func New(t *table.Table) *Container { return &Container{t: t} }

// Table returns the underlying table.Table.
func (c *Container) Table() *table.Table { return c.t }

// Get is sugar for Table.Get.
func (c *Container) Get(ctx context.Context, key jsonltkey.Key) (jsonltkey.Record, bool, error) {
	return c.t.Get(ctx, key)
}

// Contains is sugar for Table.Has.
func (c *Container) Contains(ctx context.Context, key jsonltkey.Key) (bool, error) {
	return c.t.Has(ctx, key)
}

// Set is sugar for Table.Put.
func (c *Container) Set(ctx context.Context, record jsonltkey.Record) error {
	return c.t.Put(ctx, record)
}

// Len is sugar for Table.Count.
func (c *Container) Len(ctx context.Context) (int, error) {
	return c.t.Count(ctx)
}

// Keys is sugar for Table.Keys.
func (c *Container) Keys(ctx context.Context) ([]jsonltkey.Key, error) {
	return c.t.Keys(ctx)
}

// Items is sugar for Table.Items.
func (c *Container) Items(ctx context.Context) ([]table.Item, error) {
	return c.t.Items(ctx)
}

// Values is sugar for Table.All.
func (c *Container) Values(ctx context.Context) ([]jsonltkey.Record, error) {
	return c.t.All(ctx)
}

// Pop removes key and returns its record, if present. A missing key returns
// (nil, false, nil) rather than propagating the missing-key error Table.Delete
// would raise, mirroring a dict's pop-with-default behavior.
func (c *Container) Pop(ctx context.Context, key jsonltkey.Key) (jsonltkey.Record, bool, error) {
	rec, ok, err := c.t.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := c.t.Delete(ctx, key); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// SetDefault returns key's current record if present, otherwise writes
// defaultRecord and returns it.
func (c *Container) SetDefault(ctx context.Context, key jsonltkey.Key, defaultRecord jsonltkey.Record) (jsonltkey.Record, error) {
	if rec, ok, err := c.t.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return rec, nil
	}
	if err := c.t.Put(ctx, defaultRecord); err != nil {
		return nil, err
	}
	return defaultRecord, nil
}

// Update merges each record in records into the table via Put, the way a
// dict's update() applies a batch of key/value pairs.
func (c *Container) Update(ctx context.Context, records []jsonltkey.Record) error {
	for _, rec := range records {
		if err := c.t.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
