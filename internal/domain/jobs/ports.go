package jobs

import (
	"context"

	"github.com/google/uuid"
)

// Dispatcher accepts a batch of request ids plus a job kind and enqueues
// asynchronous execution with the external job runtime. Submission only
// enqueues; it never executes the job inline.
type Dispatcher interface {
	// Submit enqueues the batch and returns a handle for it. Callers that
	// pair a Submit with a status transition must confirm the Submit before
	// applying the transition (submit-then-mark).
	Submit(ctx context.Context, batch Batch) (Handle, error)
}

// Record is the persisted form of a queued job, kept so operators and the job
// runtime can reconcile what was enqueued.
type Record struct {
	JobID       uuid.UUID
	Batch       Batch
	SubmittedBy string
}

// Repository persists queued jobs. Scoped to the tenant bound to the calling
// context.
type Repository interface {
	// CreateQueued persists the job in its queued state.
	CreateQueued(ctx context.Context, rec Record) error
}
