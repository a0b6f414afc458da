// Package kafka provides a Kafka-based implementation of the event bus for asynchronous messaging.
package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbview/dispatch/internal/domain/events"
	"github.com/orbview/dispatch/internal/domain/jobs"
	"github.com/orbview/dispatch/internal/domain/requests"
	"github.com/orbview/dispatch/pkg/common/logger"
)

// EventBusMetrics defines metrics operations needed to monitor Kafka message handling.
type EventBusMetrics interface {
	IncMessagePublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

// Config contains settings for connecting to and interacting with Kafka brokers.
// It defines the topics and client identifiers needed for message routing.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// JobBatchTopic is the topic the external job runtime consumes queued
	// batches from.
	JobBatchTopic string
	// SessionTopic is the topic session accounting updates are published to.
	SessionTopic string

	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string

	// ServiceType identifies the type of service (e.g., "dispatcher").
	ServiceType string
}

var _ events.EventBus = (*EventBus)(nil)

// EventBus implements the EventBus interface using Kafka as the underlying message broker.
// It handles publishing domain events to the external job runtime and session
// accounting consumers.
type EventBus struct {
	producer sarama.SyncProducer

	// Maps domain event types to their Kafka topics.
	topicMap map[events.EventType]string

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

// NewEventBusFromConfig creates a new Kafka-based event bus from the provided configuration.
// It establishes a connection to Kafka brokers and configures the producer for
// reliable message delivery.
func NewEventBusFromConfig(
	cfg *Config,
	logger *logger.Logger,
	metrics EventBusMetrics,
	tracer trace.Tracer,
) (*EventBus, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metrics are required for kafka event bus")
	}

	logger = logger.With(
		"component", "kafka_event_bus",
		"client_id", cfg.ClientID,
		"service_type", cfg.ServiceType,
	)

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner
	producerConfig.ClientID = cfg.ClientID

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	topicMap := map[events.EventType]string{
		jobs.EventTypeJobBatchQueued:     cfg.JobBatchTopic, // dispatcher -> job runtime
		requests.EventTypeSessionUpdated: cfg.SessionTopic,  // dispatcher -> session accounting
	}

	return &EventBus{
		producer: producer,
		topicMap: topicMap,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}

// Publish sends a domain event to the Kafka topic configured for its type.
// It handles serialization, routing based on event type, and includes
// observability instrumentation for tracing and metrics.
func (b *EventBus) Publish(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	topic, ok := b.topicMap[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type '%s', no topic mapped", event.Type)
	}

	ctx, span := startProducerSpan(ctx, topic, b.tracer)
	defer span.End()

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}

	if pParams.Key != "" {
		event.Key = pParams.Key
		span.SetAttributes(attribute.String("event.key", event.Key))
	}
	if len(pParams.Headers) > 0 {
		event.Headers = pParams.Headers
	}

	msgBytes, err := serializeEnvelope(event)
	if err != nil {
		span.RecordError(err)
		b.metrics.IncPublishError(ctx, topic)
		return fmt.Errorf("failed to serialize payload for event %s: %w", event.Type, err)
	}

	return b.publishToTopic(ctx, topic, event.Key, msgBytes)
}

func (b *EventBus) publishToTopic(ctx context.Context, topic, key string, msgBytes []byte) error {
	kafkaMsg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(msgBytes),
	}

	injectTraceContext(ctx, kafkaMsg)

	partition, offset, err := b.producer.SendMessage(kafkaMsg)
	if err != nil {
		b.metrics.IncPublishError(ctx, topic)
		return fmt.Errorf("failed to send message to kafka topic %s: %w", topic, err)
	}

	b.metrics.IncMessagePublished(ctx, topic)

	b.logger.Debug(ctx, "Published message to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset,
		"key", key,
	)

	return nil
}

// Close gracefully shuts down the producer connection.
func (b *EventBus) Close() error {
	if err := b.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
