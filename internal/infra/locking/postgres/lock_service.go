// Package postgres implements cluster-wide named locks on PostgreSQL
// advisory locks. Advisory locks are session-scoped, so each held lock pins
// one pool connection for the duration of the critical section.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/locking"
	"github.com/orbview/dispatch/pkg/common/logger"
)

var _ locking.LockService = (*lockService)(nil)

type lockService struct {
	db     *pgxpool.Pool
	logger *logger.Logger
	tracer trace.Tracer
}

// NewLockService creates a new advisory-lock-backed lock service.
func NewLockService(pool *pgxpool.Pool, log *logger.Logger, tracer trace.Tracer) *lockService {
	return &lockService{db: pool, logger: log, tracer: tracer}
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

// RunWithLock executes fn while holding the named advisory lock. If the lock
// is held elsewhere it returns locking.ErrLockBusy without waiting. The lease
// bounds fn via context cancellation.
func (s *lockService) RunWithLock(
	ctx context.Context,
	name string,
	lease time.Duration,
	fn func(ctx context.Context) error,
) error {
	ctx, span := s.tracer.Start(ctx, "lock_service.run_with_lock",
		trace.WithAttributes(
			attribute.String("lock_name", name),
			attribute.String("lease", lease.String()),
		))
	defer span.End()

	conn, err := s.db.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire connection")
		return fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&acquired); err != nil {
		conn.Release()
		span.RecordError(err)
		span.SetStatus(codes.Error, "advisory lock query failed")
		return fmt.Errorf("try advisory lock %q: %w", name, err)
	}
	if !acquired {
		conn.Release()
		span.AddEvent("lock_busy")
		return fmt.Errorf("lock %q: %w", name, locking.ErrLockBusy)
	}
	span.AddEvent("lock_acquired")

	defer func() {
		// The lease context may already be dead, unlock on a fresh one.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var released bool
		err := conn.QueryRow(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, name).Scan(&released)
		if err != nil || !released {
			// Returning the connection to the pool with the lock still held
			// would leak it, so discard the session instead.
			s.logger.Error(unlockCtx, "advisory unlock failed, discarding connection",
				"lock_name", name, "error", err)
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
		span.AddEvent("lock_released")
	}()

	leaseCtx, cancel := context.WithTimeout(withLocked(ctx, name), lease)
	defer cancel()

	if err := fn(leaseCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// AssertLocked verifies the context is executing inside a RunWithLock
// critical section for the named lock and that its lease has not expired.
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
