// Package events provides domain event handling capabilities for communicating state changes
// and important activities across system boundaries in a decoupled way.
package events

import (
	"context"
	"time"
)

// EventType represents a domain event category, enabling type-safe event routing.
// It allows the system to distinguish between job batch submissions, session
// accounting updates, and request response notifications.
type EventType string

// DomainEvent encapsulates all event data flowing through the system, providing
// a standardized format for event processing and distribution.
type DomainEvent struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business identifier
	// like a job ID that events can be grouped or partitioned by.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created, enabling temporal tracking
	// and debugging of event flows.
	Timestamp time.Time

	// Payload contains the actual event data (e.g., JobBatchQueuedEvent).
	// The concrete type depends on the EventType.
	Payload any
}

// NewDomainEvent creates a DomainEvent of the given type carrying the payload,
// stamped with the current time.
func NewDomainEvent(eventType EventType, payload any) DomainEvent {
	return DomainEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// DomainEventPublisher publishes domain events to notify other parts of the system about
// important domain changes. It provides a technology-agnostic interface to decouple event
// producers from the underlying messaging infrastructure.
type DomainEventPublisher interface {
	// PublishDomainEvent sends a domain event to interested subscribers. The provided context
	// controls cancellation and deadlines. Optional PublishOptions configure routing behavior.
	// Returns an error if publishing fails.
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}

// EventBus broadcasts domain events across system boundaries. It abstracts
// messaging infrastructure details (like Kafka) to keep domain logic focused
// on business concerns rather than transport mechanisms.
type EventBus interface {
	// Publish broadcasts a domain event to all interested subscribers. The provided context
	// controls the operation lifecycle. Optional PublishOptions configure delivery behavior.
	// Returns an error if publishing fails.
	Publish(ctx context.Context, event DomainEvent, opts ...PublishOption) error

	// Close gracefully shuts down the event bus and releases associated resources.
	// This should be called during system shutdown to prevent resource leaks.
	Close() error
}

// PublishOption is a function type that modifies PublishParams.
// It enables flexible configuration of event publishing behavior through functional options.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing domain events.
type PublishParams struct {
	// Key is used as a partition key to control event routing and ordering.
	Key string
	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets the partition key for event routing.
// The key helps ensure related events are processed in order by the same consumer.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches metadata headers to an event.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}
