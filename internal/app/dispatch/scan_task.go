package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/orbview/dispatch/internal/domain/jobs"
	"github.com/orbview/dispatch/internal/domain/locking"
	"github.com/orbview/dispatch/internal/domain/requests"
)

// ScanTask is one locked scan invocation: a normalized filter, a frozen time
// horizon, and the target status the scan moves matching requests to. It is
// constructed before the lock is acquired so an unsupported target fails fast
// without any store mutation, and executed only inside the lock's critical
// section.
type ScanTask struct {
	lockName string
	filter   requests.SearchFilter
	target   requests.Status
	kind     jobs.Kind
}

// NewScanTask validates the target status and normalizes the filter.
//
// An unset creation-date upper bound is frozen to now: the scan then processes
// a bounded, point-in-time snapshot of the backlog, and requests created while
// it runs wait for the next invocation. An empty status set, or one containing
// any status outside the blocked set, is overridden with the canonical blocked
// set rather than scanning for arbitrary statuses.
func NewScanTask(lockName string, filter requests.SearchFilter, target requests.Status, now time.Time) (*ScanTask, error) {
	kind, err := jobs.KindForTargetStatus(target)
	if err != nil {
		return nil, err
	}

	if !filter.HasHorizon() {
		filter.CreatedBefore = now
	}
	if !filter.StatusesValid() {
		filter.Statuses = requests.BlockedStatuses()
	}

	return &ScanTask{
		lockName: lockName,
		filter:   filter,
		target:   target,
		kind:     kind,
	}, nil
}

// LockName returns the cluster-wide lock the task must run under.
func (t *ScanTask) LockName() string { return t.lockName }

// Filter returns the normalized filter the task will scan with.
func (t *ScanTask) Filter() requests.SearchFilter { return t.filter }

// Target returns the status matching requests are moved to.
func (t *ScanTask) Target() requests.Status { return t.target }

// Run executes the scan inside an already-held critical section. It verifies
// the lock invariant first, then drains the backlog page by page.
func (t *ScanTask) Run(ctx context.Context, locks locking.LockService, processor *PageProcessor) (int64, int, error) {
	if err := locks.AssertLocked(ctx, t.lockName); err != nil {
		return 0, 0, fmt.Errorf("scan task invariant violated: %w", err)
	}
	return processor.Process(ctx, t.filter, t.target, t.kind)
}
