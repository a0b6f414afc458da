package responses

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/pkg/common/logger"
)

const testTenant = tenant.Tenant("t1")

type stubRepo struct {
	byID map[int64]*requests.Request

	outcomes map[int64]string // id -> recorded detail
	statuses map[int64]requests.Status
	deleted  []int64

	findErr error
}

func newStubRepo(reqs ...*requests.Request) *stubRepo {
	r := &stubRepo{
		byID:     make(map[int64]*requests.Request),
		outcomes: make(map[int64]string),
		statuses: make(map[int64]requests.Status),
	}
	for _, req := range reqs {
		r.byID[req.ID()] = req
	}
	return r
}

func (r *stubRepo) Create(ctx context.Context, req *requests.Request) error {
	return errors.New("not implemented")
}

func (r *stubRepo) Search(ctx context.Context, filter requests.SearchFilter, cursor requests.Cursor, limit int) ([]*requests.Request, requests.Cursor, error) {
	return nil, cursor, errors.New("not implemented")
}

func (r *stubRepo) UpdateStatus(ctx context.Context, ids []int64, status requests.Status) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *stubRepo) UpdateOutcome(ctx context.Context, id int64, status requests.Status, errDetail string) error {
	if _, ok := r.byID[id]; !ok {
		return requests.ErrRequestNotFound
	}
	r.statuses[id] = status
	r.outcomes[id] = errDetail
	return nil
}

func (r *stubRepo) CountByContentTypesAndStatus(ctx context.Context, contentTypes []string, status requests.Status) (int64, error) {
	return 0, errors.New("not implemented")
}

func (r *stubRepo) FindByRequestIDs(ctx context.Context, requestIDs []string) ([]*requests.Request, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*requests.Request
	for _, req := range r.byID {
		for _, rid := range requestIDs {
			if req.RequestID() == rid {
				out = append(out, req)
			}
		}
	}
	return out, nil
}

func (r *stubRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	var deleted int64
	for _, id := range ids {
		if _, ok := r.byID[id]; ok {
			delete(r.byID, id)
			r.deleted = append(r.deleted, id)
			deleted++
		}
	}
	return deleted, nil
}

type stubNotifier struct {
	updates []requests.SessionUpdate
}

func (n *stubNotifier) Notify(ctx context.Context, update requests.SessionUpdate) error {
	n.updates = append(n.updates, update)
	return nil
}

func dispatchedRequest(id int64, requestID string) *requests.Request {
	return requests.ReconstructRequest(
		id, requestID, testTenant, "imagery", "owner", "s1",
		requests.StatusDispatched, "worker-a", "", time.Now().UTC(),
	)
}

func newTestService(repo *stubRepo, notifier *stubNotifier) *Service {
	return NewService(repo, notifier,
		logger.New(io.Discard, logger.LevelDebug, "test", nil),
		noop.NewTracerProvider().Tracer("test"),
	)
}

func testContext() context.Context {
	return tenant.WithTenant(context.Background(), testTenant)
}

func TestApplyProcessedRemovesRequest(t *testing.T) {
	repo := newStubRepo(dispatchedRequest(1, "req-1"))
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier)

	err := svc.Apply(testContext(), []Outcome{{RequestID: "req-1", Result: ResultProcessed}})
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, repo.deleted)
	assert.Empty(t, notifier.updates, "success does not produce a session status update")
}

func TestApplyFailureRecordsDetail(t *testing.T) {
	repo := newStubRepo(dispatchedRequest(1, "req-1"), dispatchedRequest(2, "req-2"))
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier)

	err := svc.Apply(testContext(), []Outcome{
		{RequestID: "req-1", Result: ResultFailed, Detail: "worker crashed"},
		{RequestID: "req-2", Result: ResultInvalidContent, Detail: "bad payload"},
	})
	require.NoError(t, err)

	assert.Equal(t, requests.StatusError, repo.statuses[1])
	assert.Equal(t, "worker crashed", repo.outcomes[1])
	assert.Equal(t, requests.StatusInvalidContent, repo.statuses[2])
	assert.Equal(t, "bad payload", repo.outcomes[2])

	require.Len(t, notifier.updates, 2)
	for _, u := range notifier.updates {
		assert.Equal(t, testTenant, u.Tenant)
		assert.Equal(t, 1, u.Count)
	}
}

func TestApplyDeletedPurgesRequest(t *testing.T) {
	req := requests.ReconstructRequest(
		1, "req-1", testTenant, "imagery", "owner", "s1",
		requests.StatusToDelete, "", "", time.Now().UTC(),
	)
	repo := newStubRepo(req)
	notifier := &stubNotifier{}
	svc := newTestService(repo, notifier)

	err := svc.Apply(testContext(), []Outcome{{RequestID: "req-1", Result: ResultDeleted}})
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, repo.deleted)
	require.Len(t, notifier.updates, 1)
	assert.Equal(t, requests.StatusDeleted, notifier.updates[0].Status)
}

func TestApplyUnknownRequestSkipped(t *testing.T) {
	repo := newStubRepo(dispatchedRequest(1, "req-1"))
	svc := newTestService(repo, &stubNotifier{})

	err := svc.Apply(testContext(), []Outcome{
		{RequestID: "req-missing", Result: ResultFailed, Detail: "x"},
		{RequestID: "req-1", Result: ResultFailed, Detail: "real failure"},
	})
	require.NoError(t, err, "unknown requests are skipped, not fatal")
	assert.Equal(t, "real failure", repo.outcomes[1])
}

func TestApplyIllegalTransitionSkipped(t *testing.T) {
	// A TO_DISPATCH request was never handed to a worker, so a failure
	// outcome for it is stale.
	stale := requests.ReconstructRequest(
		1, "req-1", testTenant, "imagery", "owner", "s1",
		requests.StatusToDispatch, "", "", time.Now().UTC(),
	)
	repo := newStubRepo(stale)
	svc := newTestService(repo, &stubNotifier{})

	err := svc.Apply(testContext(), []Outcome{{RequestID: "req-1", Result: ResultFailed, Detail: "stale"}})
	require.NoError(t, err)
	assert.Empty(t, repo.outcomes, "illegal transition must not be persisted")
}

func TestApplyRequiresTenant(t *testing.T) {
	svc := newTestService(newStubRepo(), &stubNotifier{})
	err := svc.Apply(context.Background(), []Outcome{{RequestID: "r", Result: ResultProcessed}})
	assert.ErrorIs(t, err, tenant.ErrNoTenant)
}
