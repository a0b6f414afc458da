package requests

import (
	"context"
	"errors"
	"time"

	"github.com/orbview/dispatch/internal/domain/tenant"
)

// ErrRequestNotFound indicates a lookup for a request that does not exist.
var ErrRequestNotFound = errors.New("request not found")

// Repository provides persistent storage for the request backlog. All methods
// are scoped to the tenant bound to the calling context.
type Repository interface {
	// Create persists a new request and assigns its storage id.
	Create(ctx context.Context, req *Request) error

	// Search returns up to limit requests matching the filter, ordered by
	// storage id ascending, along with the cursor to resume after the last
	// returned row. An empty result reports an unchanged cursor.
	Search(ctx context.Context, filter SearchFilter, cursor Cursor, limit int) ([]*Request, Cursor, error)

	// UpdateStatus atomically moves all identified requests to the new
	// status. Returns the number of rows updated.
	UpdateStatus(ctx context.Context, ids []int64, status Status) (int64, error)

	// UpdateOutcome records a worker-reported outcome for a single request:
	// the resulting status plus optional failure detail.
	UpdateOutcome(ctx context.Context, id int64, status Status, errDetail string) error

	// CountByContentTypesAndStatus counts backlog entries matching any of
	// the content types in the given status.
	CountByContentTypesAndStatus(ctx context.Context, contentTypes []string, status Status) (int64, error)

	// FindByRequestIDs returns the requests with the given business ids.
	// Missing ids are silently omitted.
	FindByRequestIDs(ctx context.Context, requestIDs []string) ([]*Request, error)

	// DeleteByIDs removes the identified requests outright. Used when the
	// job runtime reports terminal success and the row need not be kept.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// SessionUpdate summarizes a status change for a (source, session) pair so
// external session accounting can track request counts per submission session.
type SessionUpdate struct {
	Tenant    tenant.Tenant
	Source    string
	Session   string
	Status    Status
	Count     int
	UpdatedAt time.Time
}

// SessionNotifier forwards session accounting updates to an external
// aggregation collaborator. Delivery is fire-and-forget: implementations and
// callers must never let a notification failure propagate into the operation
// that produced it.
type SessionNotifier interface {
	Notify(ctx context.Context, update SessionUpdate) error
}
