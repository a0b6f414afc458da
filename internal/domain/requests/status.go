package requests

import "fmt"

// Status represents the current state of a request. It enables tracking of the
// request lifecycle from admission through dispatch or deletion.
type Status string

const (
	// StatusToDispatch indicates a request admitted and waiting to be handed
	// to a dispatch job.
	StatusToDispatch Status = "TO_DISPATCH"

	// StatusDispatched indicates a request owned by a running job. Terminal
	// from the dispatcher's perspective until the job runtime reports back.
	StatusDispatched Status = "DISPATCHED"

	// StatusNoWorkerAvailable indicates no worker currently consumes the
	// request's content type. Re-admitted when a matching worker appears.
	StatusNoWorkerAvailable Status = "NO_WORKER_AVAILABLE"

	// StatusError indicates the processing worker reported a failure.
	StatusError Status = "ERROR"

	// StatusInvalidContent indicates the worker rejected the request body.
	StatusInvalidContent Status = "INVALID_CONTENT"

	// StatusToDelete indicates an operator marked the request for purge.
	StatusToDelete Status = "TO_DELETE"

	// StatusDeleted indicates the deletion job completed. Terminal.
	StatusDeleted Status = "DELETED"
)

func (s Status) String() string { return string(s) }

// ParseStatus converts a string to a Status. Unknown values yield the empty
// status.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusToDispatch, StatusDispatched, StatusNoWorkerAvailable,
		StatusError, StatusInvalidContent, StatusToDelete, StatusDeleted:
		return Status(s)
	default:
		return ""
	}
}

// BlockedStatuses returns the canonical set of statuses a scan is allowed to
// select from the backlog. Any loosely-specified scan filter is normalized to
// this set before pages are processed.
func BlockedStatuses() []Status {
	return []Status{StatusNoWorkerAvailable, StatusError, StatusInvalidContent}
}

// IsBlocked reports whether the status belongs to the canonical blocked set.
func (s Status) IsBlocked() bool {
	switch s {
	case StatusNoWorkerAvailable, StatusError, StatusInvalidContent:
		return true
	default:
		return false
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s Status) ValidateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid request status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target status.
// It enforces the request lifecycle rules to prevent invalid state changes.
func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusNoWorkerAvailable, StatusError, StatusInvalidContent:
		// Blocked requests are either re-admitted by a scan or purged.
		return target == StatusToDispatch || target == StatusToDelete
	case StatusToDispatch:
		// Claimed by a dispatch job as part of page processing.
		return target == StatusDispatched
	case StatusDispatched:
		// The external job runtime reports the outcome.
		return target == StatusError || target == StatusInvalidContent
	case StatusToDelete:
		return target == StatusDeleted
	case StatusDeleted:
		// Terminal state - no further transitions allowed.
		return false
	default:
		return false
	}
}
