package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/orbview/dispatch/internal/domain/events"
	"github.com/orbview/dispatch/internal/domain/tenant"
)

// EventTypeJobBatchQueued notifies the external job runtime that a batch is
// ready for asynchronous execution.
const EventTypeJobBatchQueued events.EventType = "JobBatchQueued"

// JobBatchQueuedEvent is the wire payload for EventTypeJobBatchQueued.
type JobBatchQueuedEvent struct {
	JobID      uuid.UUID     `json:"job_id"`
	Tenant     tenant.Tenant `json:"tenant"`
	Kind       Kind          `json:"kind"`
	HandlerID  string        `json:"handler_id"`
	Priority   Priority      `json:"priority"`
	RequestIDs []int64       `json:"request_ids"`
	QueuedAt   time.Time     `json:"queued_at"`
}

// NewJobBatchQueuedEvent wraps a queued job into a domain event.
func NewJobBatchQueuedEvent(jobID uuid.UUID, batch Batch) events.DomainEvent {
	return events.NewDomainEvent(EventTypeJobBatchQueued, JobBatchQueuedEvent{
		JobID:      jobID,
		Tenant:     batch.Tenant,
		Kind:       batch.Kind,
		HandlerID:  batch.HandlerID,
		Priority:   batch.Priority,
		RequestIDs: batch.RequestIDs,
		QueuedAt:   time.Now().UTC(),
	})
}
