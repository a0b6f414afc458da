package requests

import (
	"time"

	"github.com/orbview/dispatch/internal/domain/events"
	"github.com/orbview/dispatch/internal/domain/tenant"
)

const (
	// EventTypeSessionUpdated carries session accounting deltas to the
	// external session aggregation service.
	EventTypeSessionUpdated events.EventType = "SessionUpdated"
)

// SessionUpdatedEvent is the wire payload for EventTypeSessionUpdated.
type SessionUpdatedEvent struct {
	Tenant    tenant.Tenant `json:"tenant"`
	Source    string        `json:"source"`
	Session   string        `json:"session"`
	Status    Status        `json:"status"`
	Count     int           `json:"count"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewSessionUpdatedEvent wraps a session update into a domain event.
func NewSessionUpdatedEvent(update SessionUpdate) events.DomainEvent {
	return events.NewDomainEvent(EventTypeSessionUpdated, SessionUpdatedEvent{
		Tenant:    update.Tenant,
		Source:    update.Source,
		Session:   update.Session,
		Status:    update.Status,
		Count:     update.Count,
		UpdatedAt: update.UpdatedAt,
	})
}
