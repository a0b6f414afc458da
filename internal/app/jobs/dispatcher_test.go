package jobs

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/orbview/dispatch/internal/domain/events"
	domain "github.com/orbview/dispatch/internal/domain/jobs"
	"github.com/orbview/dispatch/pkg/common/logger"
)

type fakeJobRepo struct {
	records []domain.Record
	err     error
}

func (f *fakeJobRepo) CreateQueued(ctx context.Context, rec domain.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakePublisher struct {
	events []events.DomainEvent
	keys   []string
	err    error
}

func (f *fakePublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	if f.err != nil {
		return f.err
	}
	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	f.events = append(f.events, event)
	f.keys = append(f.keys, params.Key)
	return nil
}

func newTestDispatcher(repo *fakeJobRepo, pub *fakePublisher) *Dispatcher {
	return NewDispatcher(repo, pub, "dispatcher-test",
		logger.New(io.Discard, logger.LevelDebug, "test", nil),
		noop.NewTracerProvider().Tracer("test"),
	)
}

func testBatch() domain.Batch {
	return domain.Batch{
		Tenant:     "t1",
		Kind:       domain.KindDispatch,
		RequestIDs: []int64{1, 2, 3},
		Priority:   domain.PriorityRequestScan,
		HandlerID:  domain.HandlerDispatchRequests,
	}
}

func TestDispatcherSubmit(t *testing.T) {
	repo := &fakeJobRepo{}
	pub := &fakePublisher{}
	d := newTestDispatcher(repo, pub)

	handle, err := d.Submit(context.Background(), testBatch())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, handle.JobID)
	assert.Equal(t, domain.KindDispatch, handle.Kind)

	require.Len(t, repo.records, 1)
	rec := repo.records[0]
	assert.Equal(t, handle.JobID, rec.JobID)
	assert.Equal(t, "dispatcher-test", rec.SubmittedBy)
	assert.Equal(t, []int64{1, 2, 3}, rec.Batch.RequestIDs)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventTypeJobBatchQueued, pub.events[0].Type)
	assert.Equal(t, handle.JobID.String(), pub.keys[0], "event keyed by job id")

	payload, ok := pub.events[0].Payload.(domain.JobBatchQueuedEvent)
	require.True(t, ok)
	assert.Equal(t, handle.JobID, payload.JobID)
	assert.Equal(t, []int64{1, 2, 3}, payload.RequestIDs)
}

func TestDispatcherSubmitRepoFailure(t *testing.T) {
	repo := &fakeJobRepo{err: errors.New("db down")}
	pub := &fakePublisher{}
	d := newTestDispatcher(repo, pub)

	_, err := d.Submit(context.Background(), testBatch())
	require.Error(t, err)
	assert.Empty(t, pub.events, "no event published when the record is not persisted")
}

func TestDispatcherSubmitPublishFailure(t *testing.T) {
	repo := &fakeJobRepo{}
	pub := &fakePublisher{err: errors.New("broker down")}
	d := newTestDispatcher(repo, pub)

	_, err := d.Submit(context.Background(), testBatch())
	require.Error(t, err, "publish failure surfaces so the page is not marked handed off")
}
