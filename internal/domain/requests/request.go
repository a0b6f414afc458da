// Package requests defines the request backlog domain: the Request aggregate,
// its status state machine, and the ports the admission and dispatch engine
// depends on.
package requests

import (
	"time"

	"github.com/orbview/dispatch/internal/domain/tenant"
)

// Request is an inbound unit of work tagged with a content type. It sits in
// the backlog until the dispatch engine hands it to a job, or an operator
// purges it.
type Request struct {
	id          int64
	requestID   string
	tenant      tenant.Tenant
	contentType string
	source      string
	session     string
	status      Status
	workerType  string
	errDetail   string
	createdAt   time.Time
}

// NewRequest creates a Request in its initial status. The storage identifier
// is assigned by the repository on insert.
func NewRequest(requestID string, t tenant.Tenant, contentType, source, session string, status Status) *Request {
	return &Request{
		requestID:   requestID,
		tenant:      t,
		contentType: contentType,
		source:      source,
		session:     session,
		status:      status,
		createdAt:   time.Now().UTC(),
	}
}

// ReconstructRequest creates a Request from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading from the DB.
func ReconstructRequest(
	id int64,
	requestID string,
	t tenant.Tenant,
	contentType string,
	source string,
	session string,
	status Status,
	workerType string,
	errDetail string,
	createdAt time.Time,
) *Request {
	return &Request{
		id:          id,
		requestID:   requestID,
		tenant:      t,
		contentType: contentType,
		source:      source,
		session:     session,
		status:      status,
		workerType:  workerType,
		errDetail:   errDetail,
		createdAt:   createdAt,
	}
}

// ID returns the storage identifier used for stable page ordering.
func (r *Request) ID() int64 { return r.id }

// RequestID returns the business identifier, unique per tenant.
func (r *Request) RequestID() string { return r.requestID }

// Tenant returns the tenant owning this request.
func (r *Request) Tenant() tenant.Tenant { return r.tenant }

// ContentType returns the routing tag identifying which worker type should
// process this request.
func (r *Request) ContentType() string { return r.contentType }

// Source returns the owner that submitted the request. Used only for session
// notification.
func (r *Request) Source() string { return r.source }

// Session returns the submission session name. Used only for session
// notification.
func (r *Request) Session() string { return r.session }

// Status returns the current lifecycle status.
func (r *Request) Status() Status { return r.status }

// WorkerType returns the worker type the request was last dispatched to, if any.
func (r *Request) WorkerType() string { return r.workerType }

// ErrDetail returns the failure detail reported by a worker, if any.
func (r *Request) ErrDetail() string { return r.errDetail }

// CreatedAt returns the admission timestamp, compared against the scan horizon.
func (r *Request) CreatedAt() time.Time { return r.createdAt }

// TransitionTo applies a status change after validating it against the state
// machine.
func (r *Request) TransitionTo(target Status) error {
	if err := r.status.ValidateTransition(target); err != nil {
		return err
	}
	r.status = target
	return nil
}

// MarkFailed records a worker failure outcome along with its detail text.
func (r *Request) MarkFailed(status Status, detail string) error {
	if err := r.TransitionTo(status); err != nil {
		return err
	}
	r.errDetail = detail
	return nil
}
