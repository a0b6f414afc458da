// Package locking defines the cluster-wide mutual exclusion port the scan
// engine runs its critical sections under.
package locking

import (
	"context"
	"errors"
	"time"
)

// ErrLockBusy indicates the named lock is held elsewhere. Under concurrent
// dispatcher instances this is expected, not an error condition: the caller
// skips the invocation and the next trigger retries.
var ErrLockBusy = errors.New("lock busy")

// ErrNotLocked indicates code that must only run inside a critical section
// was invoked without the lock held.
var ErrNotLocked = errors.New("lock not held")

// LockService provides cluster-wide named mutual exclusion with a lease
// ceiling. At most one holder per name exists across all process instances.
type LockService interface {
	// RunWithLock executes fn while holding the named lock. If the lock is
	// held elsewhere it returns ErrLockBusy without waiting. The lease bounds
	// fn's execution: the context passed to fn is cancelled when the lease
	// expires, making the lock eligible for reclamation. Errors from fn are
	// returned unchanged.
	RunWithLock(ctx context.Context, name string, lease time.Duration, fn func(ctx context.Context) error) error

	// AssertLocked verifies the calling context is executing inside a
	// RunWithLock critical section for the named lock. Returns ErrNotLocked
	// otherwise. Code paths reachable only under the lock use this to check
	// their invariant defensively.
	AssertLocked(ctx context.Context, name string) error
}
