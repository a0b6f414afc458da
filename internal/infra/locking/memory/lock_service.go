// Package memory provides an in-process lock service for tests and
// single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orbview/dispatch/internal/domain/locking"
)

var _ locking.LockService = (*lockService)(nil)

type lockService struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockService creates a new in-memory lock service.
func NewLockService() *lockService {
	return &lockService{held: make(map[string]struct{})}
}

type lockedKey struct{}

func withLocked(ctx context.Context, name string) context.Context {
	held, _ := ctx.Value(lockedKey{}).(map[string]struct{})
	next := make(map[string]struct{}, len(held)+1)
	for k := range held {
		next[k] = struct{}{}
	}
	next[name] = struct{}{}
	return context.WithValue(ctx, lockedKey{}, next)
}

// RunWithLock executes fn while holding the named lock, or returns
// locking.ErrLockBusy without waiting if it is already held.
func (s *lockService) RunWithLock(
	ctx context.Context,
	name string,
	lease time.Duration,
	fn func(ctx context.Context) error,
) error {
	s.mu.Lock()
	if _, busy := s.held[name]; busy {
		s.mu.Unlock()
		return fmt.Errorf("lock %q: %w", name, locking.ErrLockBusy)
	}
	s.held[name] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.held, name)
		s.mu.Unlock()
	}()

	leaseCtx, cancel := context.WithTimeout(withLocked(ctx, name), lease)
	defer cancel()

	return fn(leaseCtx)
}

// AssertLocked verifies the context is executing inside a RunWithLock
// critical section for the named lock.
func (s *lockService) AssertLocked(ctx context.Context, name string) error {
	held, _ := ctx.Value(lockedKey{}).(map[string]struct{})
	if _, ok := held[name]; !ok {
		return fmt.Errorf("lock %q: %w", name, locking.ErrNotLocked)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lock %q lease expired: %w", name, locking.ErrNotLocked)
	}
	return nil
}
