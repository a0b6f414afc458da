// Package notify forwards session accounting updates to the external
// aggregation service over the event bus.
package notify

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/events"
	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/pkg/common/logger"
)

var _ requests.SessionNotifier = (*SessionNotifier)(nil)

// SessionNotifier publishes session accounting updates as domain events. The
// (source, session) pair keys the event so updates for a session land on the
// same partition in order.
type SessionNotifier struct {
	publisher events.DomainEventPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
}

// NewSessionNotifier creates an event-bus-backed session notifier.
func NewSessionNotifier(publisher events.DomainEventPublisher, log *logger.Logger, tracer trace.Tracer) *SessionNotifier {
	return &SessionNotifier{
		publisher: publisher,
		logger:    log.With("component", "session_notifier"),
		tracer:    tracer,
	}
}

// Notify publishes the session update. Callers treat failures as best-effort
// and must not abort the operation that produced the update.
func (n *SessionNotifier) Notify(ctx context.Context, update requests.SessionUpdate) error {
	ctx, span := n.tracer.Start(ctx, "session_notifier.notify",
		trace.WithAttributes(
			attribute.String("source", update.Source),
			attribute.String("session", update.Session),
			attribute.String("status", update.Status.String()),
			attribute.Int("count", update.Count),
		))
	defer span.End()

	err := n.publisher.PublishDomainEvent(ctx, requests.NewSessionUpdatedEvent(update),
		events.WithKey(update.Source+"/"+update.Session))
	if err != nil {
		span.RecordError(err)
		n.logger.Warn(ctx, "failed to publish session update",
			"source", update.Source, "session", update.Session, "error", err)
		return err
	}
	return nil
}
