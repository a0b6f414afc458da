// Package jobs implements the job dispatcher: the hand-off point between the
// scan engine and the external asynchronous execution runtime.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/events"
	domain "github.com/orbview/dispatch/internal/domain/jobs"
	"github.com/orbview/dispatch/pkg/common/logger"
)

var _ domain.Dispatcher = (*Dispatcher)(nil)

// Dispatcher persists each accepted batch as a queued job record and
// publishes a JobBatchQueued event for the external runtime to consume.
// Submission only enqueues; execution happens elsewhere. A failure in either
// step surfaces to the caller so the page that produced the batch is not
// marked handed off.
type Dispatcher struct {
	jobRepo   domain.Repository
	publisher events.DomainEventPublisher

	submittedBy string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewDispatcher creates a job dispatcher. submittedBy identifies this
// dispatcher instance in queued job records.
func NewDispatcher(
	jobRepo domain.Repository,
	publisher events.DomainEventPublisher,
	submittedBy string,
	log *logger.Logger,
	tracer trace.Tracer,
) *Dispatcher {
	return &Dispatcher{
		jobRepo:     jobRepo,
		publisher:   publisher,
		submittedBy: submittedBy,
		logger:      log.With("component", "job_dispatcher"),
		tracer:      tracer,
	}
}

// Submit enqueues the batch with the external job runtime and returns its
// handle.
func (d *Dispatcher) Submit(ctx context.Context, batch domain.Batch) (domain.Handle, error) {
	ctx, span := d.tracer.Start(ctx, "job_dispatcher.submit",
		trace.WithAttributes(
			attribute.String("kind", batch.Kind.String()),
			attribute.String("handler_id", batch.HandlerID),
			attribute.Int("request_count", len(batch.RequestIDs)),
		))
	defer span.End()

	jobID := uuid.New()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	rec := domain.Record{JobID: jobID, Batch: batch, SubmittedBy: d.submittedBy}
	if err := d.jobRepo.CreateQueued(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist queued job")
		return domain.Handle{}, fmt.Errorf("persisting queued job: %w", err)
	}

	err := d.publisher.PublishDomainEvent(ctx, domain.NewJobBatchQueuedEvent(jobID, batch),
		events.WithKey(jobID.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish job batch event")
		return domain.Handle{}, fmt.Errorf("publishing job batch event: %w", err)
	}

	d.logger.Info(ctx, "job batch queued",
		"job_id", jobID,
		"kind", batch.Kind.String(),
		"request_count", len(batch.RequestIDs),
	)

	return domain.Handle{JobID: jobID, Kind: batch.Kind}, nil
}
