package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbview/dispatch/internal/domain/jobs"
	"github.com/orbview/dispatch/internal/domain/locking"
	"github.com/orbview/dispatch/internal/domain/requests"
	lockmem "github.com/orbview/dispatch/internal/infra/locking/memory"
)

func TestNewScanTaskFreezesHorizon(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	task, err := NewScanTask("request-scan:t1", requests.SearchFilter{}, requests.StatusToDispatch, now)
	require.NoError(t, err)
	assert.Equal(t, now, task.Filter().CreatedBefore, "unset horizon frozen to invocation time")

	preset := now.Add(-time.Hour)
	task, err = NewScanTask("request-scan:t1", requests.SearchFilter{CreatedBefore: preset}, requests.StatusToDispatch, now)
	require.NoError(t, err)
	assert.Equal(t, preset, task.Filter().CreatedBefore, "preset horizon kept")
}

func TestNewScanTaskNormalizesStatuses(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		statuses []requests.Status
		want     []requests.Status
	}{
		{name: "empty set overridden", statuses: nil, want: requests.BlockedStatuses()},
		{
			name:     "non-blocked status overridden",
			statuses: []requests.Status{requests.StatusError, requests.StatusDispatched},
			want:     requests.BlockedStatuses(),
		},
		{
			name:     "valid subset kept",
			statuses: []requests.Status{requests.StatusError},
			want:     []requests.Status{requests.StatusError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := NewScanTask("request-scan:t1",
				requests.SearchFilter{Statuses: tt.statuses}, requests.StatusToDispatch, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, task.Filter().Statuses)
		})
	}
}

func TestNewScanTaskRejectsUnsupportedTarget(t *testing.T) {
	now := time.Now().UTC()

	for _, target := range []requests.Status{
		requests.StatusDispatched,
		requests.StatusDeleted,
		requests.StatusError,
		requests.StatusNoWorkerAvailable,
	} {
		_, err := NewScanTask("request-scan:t1", requests.SearchFilter{}, target, now)
		assert.ErrorIs(t, err, jobs.ErrUnsupportedTargetStatus, "target %s", target)
	}
}

func TestScanTaskRunRequiresHeldLock(t *testing.T) {
	repo := newFakeRequestRepo()
	repo.seed(10, 1, "imagery", requests.StatusNoWorkerAvailable, "s1")
	proc := newTestProcessor(repo, &fakeJobDispatcher{}, &fakeSessionNotifier{}, 400)
	locks := lockmem.NewLockService()

	task, err := NewScanTask("request-scan:t1", requests.SearchFilter{}, requests.StatusToDispatch, time.Now().UTC())
	require.NoError(t, err)

	// Outside the critical section the invariant check fails and nothing moves.
	_, _, err = task.Run(testContext(), locks, proc)
	assert.ErrorIs(t, err, locking.ErrNotLocked)
	assert.Equal(t, 10, repo.countInStatus(requests.StatusNoWorkerAvailable))

	// Inside it the scan proceeds.
	err = locks.RunWithLock(testContext(), "request-scan:t1", time.Minute, func(ctx context.Context) error {
		moved, batches, err := task.Run(ctx, locks, proc)
		require.NoError(t, err)
		assert.Equal(t, int64(10), moved)
		assert.Equal(t, 1, batches)
		return nil
	})
	require.NoError(t, err)
}

func TestScanTaskRunDerivesJobKind(t *testing.T) {
	repo := newFakeRequestRepo()
	repo.seed(5, 1, "imagery", requests.StatusError, "s1")
	disp := &fakeJobDispatcher{}
	proc := newTestProcessor(repo, disp, &fakeSessionNotifier{}, 400)
	locks := lockmem.NewLockService()

	task, err := NewScanTask("request-scan:t1",
		requests.SearchFilter{Statuses: []requests.Status{requests.StatusError}},
		requests.StatusToDelete, time.Now().UTC())
	require.NoError(t, err)

	err = locks.RunWithLock(testContext(), "request-scan:t1", time.Minute, func(ctx context.Context) error {
		_, _, err := task.Run(ctx, locks, proc)
		return err
	})
	require.NoError(t, err)

	submitted := disp.submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, jobs.KindDelete, submitted[0].Kind)
	assert.Equal(t, jobs.HandlerDeleteRequests, submitted[0].HandlerID)
	assert.Equal(t, 5, repo.countInStatus(requests.StatusToDelete))
}
