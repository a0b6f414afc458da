package requests

import "time"

// SearchFilter selects a slice of the backlog. The tenant is implicit: stores
// scope every query to the tenant bound to the calling context.
type SearchFilter struct {
	// Statuses restricts results to requests in any of the given statuses.
	Statuses []Status

	// ContentTypes restricts results to requests with any of the given
	// routing tags. Empty means all content types.
	ContentTypes []string

	// CreatedBefore is the scan horizon: only requests created strictly
	// before this instant match. A scan freezes it at invocation time so the
	// scan processes a bounded, point-in-time snapshot of the backlog.
	CreatedBefore time.Time
}

// HasHorizon reports whether the creation-date upper bound has been frozen.
func (f SearchFilter) HasHorizon() bool { return !f.CreatedBefore.IsZero() }

// StatusesValid reports whether the filter's status set is non-empty and
// contains only statuses from the canonical blocked set. Scans override
// anything else with the canonical set rather than scanning for arbitrary
// statuses.
func (f SearchFilter) StatusesValid() bool {
	if len(f.Statuses) == 0 {
		return false
	}
	for _, s := range f.Statuses {
		if !s.IsBlocked() {
			return false
		}
	}
	return true
}

// Cursor marks a position in a stable, id-ascending iteration over search
// results. The zero Cursor starts from the beginning.
type Cursor struct {
	// AfterID resumes iteration strictly after this storage id.
	AfterID int64
}

// IsZero reports whether the cursor points at the start of the result set.
func (c Cursor) IsZero() bool { return c.AfterID == 0 }
