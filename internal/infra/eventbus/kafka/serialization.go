package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/orbview/dispatch/internal/domain/events"
)

// envelope is the on-wire JSON framing for domain events. Consumers switch on
// the type discriminator to decode the payload.
type envelope struct {
	Type      events.EventType  `json:"type"`
	Key       string            `json:"key,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
}

func serializeEnvelope(event events.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	msg, err := json.Marshal(envelope{
		Type:      event.Type,
		Key:       event.Key,
		Headers:   event.Headers,
		Timestamp: event.Timestamp.UnixNano(),
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event envelope: %w", err)
	}
	return msg, nil
}
