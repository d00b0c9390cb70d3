package flock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/jsonlt/jsonlt/lock"
)

func TestExclusiveLockExcludesTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.jsonlt")
	ctx := context.Background()

	l1 := New(path)
	assert.NilError(t, l1.Lock(ctx, lock.Exclusive))

	l2 := New(path)
	ok, err := l2.TryLock(ctx, lock.Exclusive)
	assert.NilError(t, err)
	assert.Assert(t, !ok)

	assert.NilError(t, l1.Unlock(ctx))

	ok, err = l2.TryLock(ctx, lock.Exclusive)
	assert.NilError(t, err)
	assert.Assert(t, ok)
	assert.NilError(t, l2.Unlock(ctx))
}

func TestSharedLocksFromSeparateInstancesCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.jsonlt")
	ctx := context.Background()

	l1 := New(path)
	ok, err := l1.TryLock(ctx, lock.Shared)
	assert.NilError(t, err)
	assert.Assert(t, ok)
	defer l1.Unlock(ctx) //nolint:errcheck

	l2 := New(path)
	ok, err = l2.TryLock(ctx, lock.Shared)
	assert.NilError(t, err)
	assert.Assert(t, ok, "a second reader must be able to hold a shared lock concurrently")
	defer l2.Unlock(ctx) //nolint:errcheck

	l3 := New(path)
	ok, err = l3.TryLock(ctx, lock.Exclusive)
	assert.NilError(t, err)
	assert.Assert(t, !ok, "an exclusive lock must be excluded while shared holders remain")
}

func TestLockBlocksUntilContextDeadline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.jsonlt")

	holder := New(path)
	assert.NilError(t, holder.Lock(context.Background(), lock.Exclusive))
	defer holder.Unlock(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	waiter := New(path)
	err := waiter.Lock(ctx, lock.Exclusive)
	assert.Assert(t, err != nil)
}

func TestWithLockReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.jsonlt")
	l := New(path)

	err := lock.WithLock(context.Background(), l, lock.Exclusive, func() error {
		return errFixture{}
	})
	assert.Assert(t, err == errFixture{})

	ok, err := l.TryLock(context.Background(), lock.Exclusive)
	assert.NilError(t, err)
	assert.Assert(t, ok, "WithLock must release the lock even when fn fails")
	assert.NilError(t, l.Unlock(context.Background()))
}

type errFixture struct{}

func (errFixture) Error() string { return "boom" }
