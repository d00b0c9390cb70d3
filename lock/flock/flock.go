// Package flock implements lock.Locker with gofrs/flock, combining in-process
// exclusion with whole-file advisory locking across processes (spec §4.1).
package flock

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/jsonlt/jsonlt/jsonlterr"
	"github.com/jsonlt/jsonlt/lock"
)

const retryDelay = 100 * time.Millisecond

// compile-time interface check.
var _ lock.Locker = (*Lock)(nil)

// Lock provides mutual exclusion combining:
//   - In-process exclusion via a size-1 buffered channel, gating every
//     acquisition (Shared or Exclusive) on one Lock value identically. A
//     goroutine acquires the in-process token before touching the filesystem;
//     it releases it on Unlock. Using a channel (rather than sync.Mutex)
//     enables context-aware blocking in Lock() and non-blocking short-circuit
//     in TryLock() without any syscall.
//   - Cross-process exclusion via flock(2) with a fresh fd on every
//     acquisition, so concurrent callers on the same Lock instance properly
//     block each other the same way callers on distinct Lock instances do.
//
// A single Lock value supports one outstanding acquisition at a time (the
// Table and Transaction types that use it already serialize their own
// operations under an internal mutex, so this is never a bottleneck in
// practice). Callers needing true concurrent shared readers from one process
// should create independent Lock values over the same path — each opens its
// own fd, and flock(2) shared locks correctly coexist across fds.
type Lock struct {
	path string
	ch   chan struct{}
	// fl is the active flock fd, non-nil while the lock is held.
	fl *flock.Flock
}

// New creates a Lock for the given path.
func New(path string) *Lock {
	return &Lock{path: path, ch: make(chan struct{}, 1)}
}

// Lock acquires the lock in mode, blocking until available or ctx is cancelled.
func (l *Lock) Lock(ctx context.Context, mode lock.Mode) error {
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return jsonlterr.Lock(ctx.Err(), "acquire %s lock %s", mode, l.path)
	}
	ok, err := l.commitFlock(mode, func(fl *flock.Flock) (bool, error) {
		if mode == lock.Shared {
			return fl.TryRLockContext(ctx, retryDelay)
		}
		return fl.TryLockContext(ctx, retryDelay)
	})
	if err != nil {
		return jsonlterr.Lock(err, "acquire %s flock %s", mode, l.path)
	}
	if !ok {
		return jsonlterr.Lock(ctx.Err(), "acquire %s flock %s", mode, l.path)
	}
	return nil
}

// TryLock attempts a non-blocking acquisition in mode.
// Returns (false, nil) if the lock is currently held by another caller.
func (l *Lock) TryLock(_ context.Context, mode lock.Mode) (bool, error) {
	select {
	case l.ch <- struct{}{}:
	default:
		return false, nil
	}
	return l.commitFlock(mode, func(fl *flock.Flock) (bool, error) {
		if mode == lock.Shared {
			return fl.TryRLock()
		}
		return fl.TryLock()
	})
}

// Unlock releases the lock.
func (l *Lock) Unlock(_ context.Context) error {
	var err error
	if l.fl != nil {
		err = l.fl.Unlock()
		l.fl = nil
	}
	select {
	case <-l.ch:
	default:
	}
	if err != nil {
		return jsonlterr.Lock(err, "release flock %s", l.path)
	}
	return nil
}

// commitFlock opens a fresh flock fd, runs acquire, and either stores the fd
// (on success) or releases the channel token (on failure) so Unlock is always
// called in a balanced pair with Lock/TryLock.
func (l *Lock) commitFlock(_ lock.Mode, acquire func(*flock.Flock) (bool, error)) (bool, error) {
	fl := flock.New(l.path)
	locked, err := acquire(fl)
	if err != nil {
		<-l.ch
		return false, err
	}
	if !locked {
		<-l.ch
		return false, nil
	}
	l.fl = fl
	return true, nil
}
