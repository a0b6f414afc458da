package dispatch

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/pkg/common"
	"github.com/orbview/dispatch/pkg/common/logger"
)

// Scheduler drives the scan engine: a cron schedule produces periodic
// triggers, and worker availability events produce immediate ones. Each
// trigger fans out over the active tenants with bounded concurrency, binding
// each tenant to its own context before invoking the orchestrator. A
// per-tenant rate limiter absorbs trigger bursts so a flapping worker cannot
// hammer the backlog.
type Scheduler struct {
	orchestrator *ScanOrchestrator
	resolver     tenant.Resolver

	schedule    string
	concurrency int

	triggerCh chan struct{}

	limiterMu sync.Mutex
	limiters  map[tenant.Tenant]*common.RateLimiter
	rps       float64
	burst     int

	logger *logger.Logger
	tracer trace.Tracer
}

// SchedulerConfig holds the scheduler tunables.
type SchedulerConfig struct {
	// Schedule is the cron spec for periodic auto-scans.
	Schedule string
	// TenantConcurrency caps how many tenants are scanned in parallel.
	TenantConcurrency int
	// TriggersPerSecond and TriggerBurst rate-limit scan triggers per tenant.
	TriggersPerSecond float64
	TriggerBurst      int
}

// NewScheduler creates a scheduler for the given orchestrator and tenant set.
func NewScheduler(
	orchestrator *ScanOrchestrator,
	resolver tenant.Resolver,
	cfg SchedulerConfig,
	log *logger.Logger,
	tracer trace.Tracer,
) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		resolver:     resolver,
		schedule:     cfg.Schedule,
		concurrency:  cfg.TenantConcurrency,
		triggerCh:    make(chan struct{}, 1),
		limiters:     make(map[tenant.Tenant]*common.RateLimiter),
		rps:          cfg.TriggersPerSecond,
		burst:        cfg.TriggerBurst,
		logger:       log.With("component", "scan_scheduler"),
		tracer:       tracer,
	}
}

// TriggerNow requests an immediate scan pass outside the cron schedule, e.g.
// when a worker type becomes available. Coalesces with a pending trigger.
func (s *Scheduler) TriggerNow() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Run blocks, firing scan passes on the cron schedule and on explicit
// triggers, until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.TriggerNow); err != nil {
		return err
	}
	c.Start()
	defer func() {
		stopCtx := c.Stop()
		<-stopCtx.Done()
	}()

	s.logger.Info(ctx, "scan scheduler started", "schedule", s.schedule, "tenant_concurrency", s.concurrency)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.triggerCh:
			s.scanAllTenants(ctx)
		}
	}
}

// scanAllTenants runs one scan pass over every active tenant. A tenant whose
// rate limiter rejects the trigger is skipped; a tenant whose scan fails is
// logged, neither blocks the others.
func (s *Scheduler) scanAllTenants(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "scan_scheduler.scan_all_tenants")
	defer span.End()

	tenants, err := s.resolver.ActiveTenants(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Error(ctx, "failed to resolve active tenants", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, t := range tenants {
		if !s.limiterFor(t).Allow() {
			s.logger.Debug(ctx, "scan trigger rate-limited", "tenant", t.String())
			continue
		}

		g.Go(func() error {
			tenantCtx := tenant.WithTenant(gctx, t)
			if err := s.orchestrator.TriggerAutoScan(tenantCtx); err != nil {
				s.logger.Error(tenantCtx, "auto-scan failed", "tenant", t.String(), "error", err)
			}
			return nil
		})
	}

	_ = g.Wait()
}

func (s *Scheduler) limiterFor(t tenant.Tenant) *common.RateLimiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	rl, ok := s.limiters[t]
	if !ok {
		rl = common.NewRateLimiter(s.rps, s.burst)
		s.limiters[t] = rl
	}
	return rl
}
