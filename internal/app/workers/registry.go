// Package workers tracks the worker fleet: which worker types are configured,
// which content types they consume, and whether each type is currently alive.
package workers

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/config"
	"github.com/orbview/dispatch/pkg/common/logger"
)

// Registry combines the static worker configuration with dynamic liveness
// derived from heartbeats. A worker type is alive while its most recent
// heartbeat is younger than the TTL; liveness is advisory only, the scan
// pre-check consults it to avoid queueing work no worker will pick up.
type Registry struct {
	cfgLoader config.Loader
	ttl       time.Duration

	mu         sync.RWMutex
	configs    []config.WorkerConfig
	heartbeats map[string]time.Time

	// onAvailable fires when a worker type transitions from dead to alive,
	// letting the scheduler trigger an immediate scan instead of waiting for
	// the next tick.
	onAvailable func(workerType string)

	logger *logger.Logger
	tracer trace.Tracer

	now func() time.Time
}

// NewRegistry creates a worker registry backed by the given configuration
// loader. Call Refresh before first use to populate the configuration.
func NewRegistry(cfgLoader config.Loader, ttl time.Duration, log *logger.Logger, tracer trace.Tracer) *Registry {
	return &Registry{
		cfgLoader:  cfgLoader,
		ttl:        ttl,
		heartbeats: make(map[string]time.Time),
		logger:     log.With("component", "worker_registry"),
		tracer:     tracer,
		now:        time.Now,
	}
}

// OnAvailable registers the callback fired when a worker type comes back
// alive. Must be called before heartbeats start flowing.
func (r *Registry) OnAvailable(fn func(workerType string)) { r.onAvailable = fn }

// Refresh reloads the worker configuration from the underlying source.
func (r *Registry) Refresh(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "worker_registry.refresh")
	defer span.End()

	cfg, err := r.cfgLoader.Load(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	r.mu.Lock()
	r.configs = cfg.Workers
	r.mu.Unlock()

	span.SetAttributes(attribute.Int("worker_type_count", len(cfg.Workers)))
	r.logger.Info(ctx, "worker configuration refreshed", "worker_type_count", len(cfg.Workers))
	return nil
}

// Configs returns the configured worker types.
func (r *Registry) Configs() []config.WorkerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]config.WorkerConfig, len(r.configs))
	copy(out, r.configs)
	return out
}

// WorkerTypeFor resolves the worker type configured to consume the given
// content type.
func (r *Registry) WorkerTypeFor(contentType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.configs {
		if cfg.ConsumesContentType(contentType) {
			return cfg.WorkerType, true
		}
	}
	return "", false
}

// IsAlive reports whether the worker type has heartbeated within the TTL.
func (r *Registry) IsAlive(workerType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aliveLocked(workerType)
}

func (r *Registry) aliveLocked(workerType string) bool {
	last, ok := r.heartbeats[workerType]
	if !ok {
		return false
	}
	return r.now().Sub(last) < r.ttl
}

// AliveForContentType reports whether any worker type consuming the content
// type is currently alive.
func (r *Registry) AliveForContentType(contentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.configs {
		if cfg.ConsumesContentType(contentType) && r.aliveLocked(cfg.WorkerType) {
			return true
		}
	}
	return false
}

// MarkHeartbeat records a heartbeat for the worker type. A dead-to-alive
// transition fires the availability callback.
func (r *Registry) MarkHeartbeat(ctx context.Context, workerType string) {
	r.mu.Lock()
	wasAlive := r.aliveLocked(workerType)
	r.heartbeats[workerType] = r.now()
	r.mu.Unlock()

	if !wasAlive {
		r.logger.Info(ctx, "worker type became available", "worker_type", workerType)
		if r.onAvailable != nil {
			r.onAvailable(workerType)
		}
	}
}
