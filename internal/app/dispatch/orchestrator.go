// Package dispatch implements the scan engine: deciding when a tenant's
// backlog warrants a scan, running the scan under a cluster-wide lock, and
// draining the matching requests into job batches page by page.
package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/app/workers"
	"github.com/orbview/dispatch/internal/config"
	"github.com/orbview/dispatch/internal/domain/locking"
	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/pkg/common/logger"
)

const lockNamePrefix = "request-scan:"

// ScanLockName returns the cluster-wide lock name serializing scans for one
// tenant. Different tenants use different names so their scans never contend.
func ScanLockName(t tenant.Tenant) string { return lockNamePrefix + t.String() }

// ScanOrchestrator decides, per tenant, whether a scan is warranted and runs
// it under the tenant's scan lock. A scan is warranted for a worker
// configuration when backlog exists for its content types and the worker type
// is alive; operators can additionally force a scan with an explicit filter
// and target.
type ScanOrchestrator struct {
	registry    *workers.Registry
	requestRepo requests.Repository
	processor   *PageProcessor
	locks       locking.LockService
	lease       time.Duration

	logger  *logger.Logger
	metrics DispatchMetrics
	tracer  trace.Tracer
}

// NewScanOrchestrator creates a scan orchestrator. The lease bounds how long
// any single scan may hold its tenant lock.
func NewScanOrchestrator(
	registry *workers.Registry,
	requestRepo requests.Repository,
	processor *PageProcessor,
	locks locking.LockService,
	lease time.Duration,
	log *logger.Logger,
	metrics DispatchMetrics,
	tracer trace.Tracer,
) *ScanOrchestrator {
	return &ScanOrchestrator{
		registry:    registry,
		requestRepo: requestRepo,
		processor:   processor,
		locks:       locks,
		lease:       lease,
		logger:      log.With("component", "scan_orchestrator"),
		metrics:     metrics,
		tracer:      tracer,
	}
}

// TriggerAutoScan evaluates every worker configuration for the tenant bound
// to the context and scans the ones with waiting backlog and a live worker.
// A failure for one configuration never blocks evaluation of the others, and
// a busy lock is a skip, not an error.
func (s *ScanOrchestrator) TriggerAutoScan(ctx context.Context) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "scan_orchestrator.trigger_auto_scan",
		trace.WithAttributes(attribute.String("tenant", t.String())))
	defer span.End()

	for _, cfg := range s.registry.Configs() {
		if err := s.scanForConfig(ctx, cfg); err != nil {
			if errors.Is(err, locking.ErrLockBusy) {
				s.metrics.IncScansSkipped(ctx)
				s.logger.Debug(ctx, "scan lock busy, skipping",
					"tenant", t.String(), "worker_type", cfg.WorkerType)
				continue
			}
			s.metrics.IncScansFailed(ctx)
			s.logger.Error(ctx, "scan failed for worker configuration",
				"tenant", t.String(), "worker_type", cfg.WorkerType, "error", err)
		}
	}
	return nil
}

// scanForConfig runs the auto-scan admission checks for one worker
// configuration and, if they pass, a locked scan re-admitting its
// NO_WORKER_AVAILABLE backlog for dispatch.
func (s *ScanOrchestrator) scanForConfig(ctx context.Context, cfg config.WorkerConfig) error {
	if !s.registry.IsAlive(cfg.WorkerType) {
		return nil
	}

	// Cheap admission pre-check: an empty backlog scan is safe but pointless.
	count, err := s.requestRepo.CountByContentTypesAndStatus(ctx, cfg.ContentTypes, requests.StatusNoWorkerAvailable)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	t := tenant.MustFromContext(ctx)
	task, err := NewScanTask(ScanLockName(t), requests.SearchFilter{
		Statuses:     []requests.Status{requests.StatusNoWorkerAvailable},
		ContentTypes: cfg.ContentTypes,
	}, requests.StatusToDispatch, time.Now().UTC())
	if err != nil {
		return err
	}

	moved, batches, err := s.runLocked(ctx, task)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "auto-scan completed",
		"tenant", t.String(),
		"worker_type", cfg.WorkerType,
		"requests_moved", moved,
		"batches_submitted", batches,
	)
	return nil
}

// TriggerForcedScan runs an operator-specified scan for the tenant bound to
// the context: an arbitrary filter over the blocked statuses and an explicit
// target status. Used for forced retry of failed requests and bulk deletion.
// Unlike auto-scans, a busy lock surfaces as an error so the operator knows
// the scan did not run.
func (s *ScanOrchestrator) TriggerForcedScan(
	ctx context.Context,
	filter requests.SearchFilter,
	target requests.Status,
) (int64, int, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, 0, err
	}

	ctx, span := s.tracer.Start(ctx, "scan_orchestrator.trigger_forced_scan",
		trace.WithAttributes(
			attribute.String("tenant", t.String()),
			attribute.String("target_status", target.String()),
		))
	defer span.End()

	task, err := NewScanTask(ScanLockName(t), filter, target, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid scan target")
		return 0, 0, err
	}

	moved, batches, err := s.runLocked(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.IncScansFailed(ctx)
		return moved, batches, err
	}

	s.logger.Info(ctx, "forced scan completed",
		"tenant", t.String(),
		"target_status", target.String(),
		"requests_moved", moved,
		"batches_submitted", batches,
	)
	return moved, batches, nil
}

// runLocked executes the task inside its named lock. The lease is the
// cancellation boundary: the task's context dies when the lease expires.
func (s *ScanOrchestrator) runLocked(ctx context.Context, task *ScanTask) (int64, int, error) {
	var (
		moved   int64
		batches int
	)

	s.metrics.IncScansStarted(ctx)
	start := time.Now()

	err := s.locks.RunWithLock(ctx, task.LockName(), s.lease, func(ctx context.Context) error {
		var err error
		moved, batches, err = task.Run(ctx, s.locks, s.processor)
		return err
	})

	s.metrics.ObserveScanDuration(ctx, time.Since(start))
	return moved, batches, err
}
