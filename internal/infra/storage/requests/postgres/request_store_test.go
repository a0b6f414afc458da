package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/internal/domain/tenant"
	"github.com/orbview/dispatch/internal/infra/storage"
)

const testTenant = tenant.Tenant("t1")

func setupStore(t *testing.T) (*requestStore, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := storage.SetupTestContainer(t)
	t.Cleanup(cleanup)

	return NewRequestStore(pool, storage.NoOpTracer()), tenant.WithTenant(context.Background(), testTenant)
}

func seedRequests(t *testing.T, store *requestStore, ctx context.Context, count int, contentType string, status requests.Status) []*requests.Request {
	t.Helper()
	out := make([]*requests.Request, 0, count)
	for i := 0; i < count; i++ {
		req := requests.NewRequest(
			fmt.Sprintf("%s-%s-%d", contentType, status.String(), i),
			testTenant, contentType, "owner", "s1", status,
		)
		require.NoError(t, store.Create(ctx, req))
		require.NotZero(t, req.ID(), "create assigns the storage id")
		out = append(out, req)
	}
	return out
}

func TestRequestStoreCreateAndFind(t *testing.T) {
	store, ctx := setupStore(t)

	req := requests.NewRequest("req-1", testTenant, "imagery", "owner", "s1", requests.StatusNoWorkerAvailable)
	require.NoError(t, store.Create(ctx, req))

	found, err := store.FindByRequestIDs(ctx, []string{"req-1", "req-missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	got := found[0]
	assert.Equal(t, req.ID(), got.ID())
	assert.Equal(t, "req-1", got.RequestID())
	assert.Equal(t, "imagery", got.ContentType())
	assert.Equal(t, "owner", got.Source())
	assert.Equal(t, "s1", got.Session())
	assert.Equal(t, requests.StatusNoWorkerAvailable, got.Status())
}

func TestRequestStoreSearchPaginatesByID(t *testing.T) {
	store, ctx := setupStore(t)

	seeded := seedRequests(t, store, ctx, 5, "imagery", requests.StatusNoWorkerAvailable)

	filter := requests.SearchFilter{
		Statuses:      []requests.Status{requests.StatusNoWorkerAvailable},
		CreatedBefore: time.Now().UTC().Add(time.Minute),
	}

	var (
		cursor requests.Cursor
		seen   []int64
	)
	for {
		page, next, err := store.Search(ctx, filter, cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, req := range page {
			seen = append(seen, req.ID())
		}
		cursor = next
	}

	require.Len(t, seen, 5)
	for i, req := range seeded {
		assert.Equal(t, req.ID(), seen[i], "pages come back in id order")
	}
}

func TestRequestStoreSearchFilters(t *testing.T) {
	store, ctx := setupStore(t)

	matching := seedRequests(t, store, ctx, 2, "imagery", requests.StatusNoWorkerAvailable)
	seedRequests(t, store, ctx, 2, "telemetry", requests.StatusNoWorkerAvailable)
	seedRequests(t, store, ctx, 2, "imagery", requests.StatusDispatched)

	filter := requests.SearchFilter{
		Statuses:      []requests.Status{requests.StatusNoWorkerAvailable},
		ContentTypes:  []string{"imagery"},
		CreatedBefore: time.Now().UTC().Add(time.Minute),
	}

	page, _, err := store.Search(ctx, filter, requests.Cursor{}, 100)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, matching[0].ID(), page[0].ID())
	assert.Equal(t, matching[1].ID(), page[1].ID())
}

func TestRequestStoreSearchHonorsHorizon(t *testing.T) {
	store, ctx := setupStore(t)

	seedRequests(t, store, ctx, 3, "imagery", requests.StatusNoWorkerAvailable)

	filter := requests.SearchFilter{
		Statuses:      []requests.Status{requests.StatusNoWorkerAvailable},
		CreatedBefore: time.Now().UTC().Add(-time.Hour),
	}

	page, _, err := store.Search(ctx, filter, requests.Cursor{}, 100)
	require.NoError(t, err)
	assert.Empty(t, page, "rows created after the horizon stay out of the scan")
}

func TestRequestStoreUpdateStatusVacatesFilter(t *testing.T) {
	store, ctx := setupStore(t)

	seeded := seedRequests(t, store, ctx, 3, "imagery", requests.StatusNoWorkerAvailable)
	ids := []int64{seeded[0].ID(), seeded[1].ID()}

	updated, err := store.UpdateStatus(ctx, ids, requests.StatusToDispatch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	filter := requests.SearchFilter{
		Statuses:      []requests.Status{requests.StatusNoWorkerAvailable},
		CreatedBefore: time.Now().UTC().Add(time.Minute),
	}
	page, _, err := store.Search(ctx, filter, requests.Cursor{}, 100)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, seeded[2].ID(), page[0].ID())
}

func TestRequestStoreUpdateOutcome(t *testing.T) {
	store, ctx := setupStore(t)

	req := requests.NewRequest("req-1", testTenant, "imagery", "owner", "s1", requests.StatusDispatched)
	require.NoError(t, store.Create(ctx, req))

	require.NoError(t, store.UpdateOutcome(ctx, req.ID(), requests.StatusError, "worker crashed"))

	found, err := store.FindByRequestIDs(ctx, []string{"req-1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, requests.StatusError, found[0].Status())
	assert.Equal(t, "worker crashed", found[0].ErrDetail())
}

func TestRequestStoreUpdateOutcomeUnknownID(t *testing.T) {
	store, ctx := setupStore(t)

	err := store.UpdateOutcome(ctx, 9999, requests.StatusError, "x")
	assert.ErrorIs(t, err, requests.ErrRequestNotFound)
}

func TestRequestStoreCountByContentTypesAndStatus(t *testing.T) {
	store, ctx := setupStore(t)

	seedRequests(t, store, ctx, 3, "imagery", requests.StatusNoWorkerAvailable)
	seedRequests(t, store, ctx, 2, "telemetry", requests.StatusNoWorkerAvailable)
	seedRequests(t, store, ctx, 1, "imagery", requests.StatusError)

	count, err := store.CountByContentTypesAndStatus(ctx, []string{"imagery", "telemetry"}, requests.StatusNoWorkerAvailable)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	count, err = store.CountByContentTypesAndStatus(ctx, []string{"imagery"}, requests.StatusError)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRequestStoreDeleteByIDs(t *testing.T) {
	store, ctx := setupStore(t)

	seeded := seedRequests(t, store, ctx, 2, "imagery", requests.StatusToDelete)

	deleted, err := store.DeleteByIDs(ctx, []int64{seeded[0].ID(), seeded[1].ID(), 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	found, err := store.FindByRequestIDs(ctx, []string{seeded[0].RequestID()})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestRequestStoreTenantIsolation(t *testing.T) {
	store, ctx := setupStore(t)

	seedRequests(t, store, ctx, 2, "imagery", requests.StatusNoWorkerAvailable)

	otherCtx := tenant.WithTenant(context.Background(), "t2")

	count, err := store.CountByContentTypesAndStatus(otherCtx, []string{"imagery"}, requests.StatusNoWorkerAvailable)
	require.NoError(t, err)
	assert.Zero(t, count)

	updated, err := store.UpdateStatus(otherCtx, []int64{1, 2}, requests.StatusToDispatch)
	require.NoError(t, err)
	assert.Zero(t, updated, "one tenant cannot move another tenant's rows")
}

func TestRequestStoreRequiresTenant(t *testing.T) {
	store, _ := setupStore(t)

	_, _, err := store.Search(context.Background(), requests.SearchFilter{}, requests.Cursor{}, 10)
	assert.ErrorIs(t, err, tenant.ErrNoTenant)
}
