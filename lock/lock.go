// Package lock defines the locking primitive used to coordinate JSONLT
// readers and writers, in-process and across processes (spec §4.1, §5).
package lock

import "context"

// Mode selects the kind of hold a Locker acquires.
type Mode int

const (
	// Shared allows multiple concurrent holders; excluded only by Exclusive.
	Shared Mode = iota
	// Exclusive excludes every other holder, Shared or Exclusive.
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Locker provides mutual exclusion with context support. Acquisition blocks
// until available or ctx is done; TryLock attempts a single non-blocking
// acquisition. The lock is cooperative: it coordinates cooperating JSONLT
// processes only, and must be released on every success and every failure
// path by the caller.
type Locker interface {
	Lock(ctx context.Context, mode Mode) error
	TryLock(ctx context.Context, mode Mode) (bool, error)
	Unlock(ctx context.Context) error
}

// WithLock acquires l in mode, runs fn, and releases the lock on both the
// success and failure path.
func WithLock(ctx context.Context, l Locker, mode Mode, fn func() error) error {
	if err := l.Lock(ctx, mode); err != nil {
		return err
	}
	defer l.Unlock(ctx) //nolint:errcheck
	return fn()
}
