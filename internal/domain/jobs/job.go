// Package jobs defines the batch job model the dispatch engine hands work off
// with: a job kind, a set of request ids, and the handler the external job
// runtime should invoke.
package jobs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/internal/domain/tenant"
)

// Kind identifies what the external job runtime should do with a batch.
type Kind string

const (
	// KindDispatch routes the batch's requests to their matching workers.
	KindDispatch Kind = "DISPATCH"

	// KindDelete purges the batch's requests.
	KindDelete Kind = "DELETE"
)

func (k Kind) String() string { return string(k) }

// Handler identifiers the external runtime resolves to an executable job.
const (
	HandlerDispatchRequests = "requests.dispatch"
	HandlerDeleteRequests   = "requests.delete"
)

// Priority orders queued jobs in the external runtime. Scan jobs run at a
// fixed mid-range priority so operator-triggered work is not starved by
// routine admission.
type Priority int

const PriorityRequestScan Priority = 50

// ErrUnsupportedTargetStatus indicates a scan was configured with a target
// status that has no job kind mapping. This is a configuration error and must
// fail the scan before any store mutation.
var ErrUnsupportedTargetStatus = errors.New("unsupported scan target status")

// KindForTargetStatus maps a scan's target status to the job kind that must
// accompany the status transition.
func KindForTargetStatus(target requests.Status) (Kind, error) {
	switch target {
	case requests.StatusToDispatch:
		return KindDispatch, nil
	case requests.StatusToDelete:
		return KindDelete, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTargetStatus, target)
	}
}

// HandlerForKind returns the handler identifier the external runtime should
// invoke for a job kind.
func HandlerForKind(kind Kind) string {
	if kind == KindDelete {
		return HandlerDeleteRequests
	}
	return HandlerDispatchRequests
}

// Batch is the unit of work handed to the external asynchronous execution
// runtime, referencing a set of request ids. A request id appears in at most
// one in-flight batch: the page transaction that creates a batch also flips
// the requests' status so they no longer match the scan filter.
type Batch struct {
	Tenant     tenant.Tenant
	Kind       Kind
	RequestIDs []int64
	Priority   Priority
	HandlerID  string
}

// Handle identifies a job accepted by the dispatcher.
type Handle struct {
	JobID uuid.UUID
	Kind  Kind
}
