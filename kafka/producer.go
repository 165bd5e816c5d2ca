package kafka

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"log/slog"

	"voltcare/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/hamba/avro/v2"
	"github.com/riferrei/srclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Producer publishes service lifecycle events to Kafka. Messages are
// Avro-encoded in the Confluent wire format: a zero magic byte, the
// registered schema ID big-endian, then the Avro payload.
type Producer struct {
	kafkaProducer *kafka.Producer
	srClient      *srclient.SchemaRegistryClient
	schema        avro.Schema
	SchemaID      int
	topic         string
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewProducer creates a Kafka producer, registers the service event schema
// with the schema registry, and keeps the assigned schema ID for encoding.
func NewProducer(bootstrapServers, schemaRegistryURL, topic string, logger *slog.Logger) (*Producer, error) {
	config := &kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"compression.type":  "snappy",
	}
	p, err := kafka.NewProducer(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	srClient := srclient.CreateSchemaRegistryClient(schemaRegistryURL)

	schemaBytes, err := os.ReadFile("service_event.avsc")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	schemaStr := string(schemaBytes)
	schema, err := avro.Parse(schemaStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	schemaObj, err := srClient.CreateSchema(topic+"-value", schemaStr, srclient.Avro)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema: %w", err)
	}
	logger.Info("Schema registered", "schemaID", schemaObj.ID(), "app", "voltcare")

	return &Producer{
		kafkaProducer: p,
		srClient:      srClient,
		schema:        schema,
		SchemaID:      schemaObj.ID(),
		topic:         topic,
		logger:        logger,
		tracer:        otel.Tracer("voltcare"),
	}, nil
}

// PublishOutboxEvent decodes the outbox payload, Avro-encodes it, and
// publishes it, waiting for the broker's delivery report.
func (p *Producer) PublishOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	_, span := p.tracer.Start(ctx, "PublishOutboxEvent")
	defer span.End()

	var serviceEvent domain.ServiceEvent
	if err := json.Unmarshal(event.Payload, &serviceEvent); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode outbox payload")
		p.logger.Error("Failed to decode outbox payload", "eventID", event.ID, "error", err, "app", "voltcare")
		return fmt.Errorf("failed to decode outbox payload: %w", err)
	}

	payload, err := avro.Marshal(p.schema, &serviceEvent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to serialize event")
		p.logger.Error("Failed to serialize event", "eventID", event.ID, "error", err, "app", "voltcare")
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	encoded := make([]byte, 5+len(payload))
	encoded[0] = 0
	binary.BigEndian.PutUint32(encoded[1:5], uint32(p.SchemaID))
	copy(encoded[5:], payload)

	deliveryChan := make(chan kafka.Event)
	err = p.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(serviceEvent.ServiceID),
		Value:          encoded,
	}, deliveryChan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to produce message")
		p.logger.Error("Failed to produce message", "eventID", event.ID, "error", err, "app", "voltcare")
		return fmt.Errorf("failed to produce message: %w", err)
	}

	e := <-deliveryChan
	m := e.(*kafka.Message)
	if m.TopicPartition.Error != nil {
		span.RecordError(m.TopicPartition.Error)
		span.SetStatus(codes.Error, "Delivery failed")
		p.logger.Error("Delivery failed", "eventID", event.ID, "error", m.TopicPartition.Error, "app", "voltcare")
		return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
	}
	p.logger.Info("Published outbox event",
		"eventID", event.ID,
		"eventType", event.EventType,
		"topic", *m.TopicPartition.Topic,
		"partition", m.TopicPartition.Partition,
		"offset", m.TopicPartition.Offset,
		"app", "voltcare")
	span.SetAttributes(
		attribute.String("eventID", event.ID),
		attribute.String("eventType", event.EventType),
		attribute.String("topic", *m.TopicPartition.Topic),
		attribute.Int("partition", int(m.TopicPartition.Partition)),
		attribute.Int64("offset", int64(m.TopicPartition.Offset)),
	)

	close(deliveryChan)
	return nil
}

// Close shuts down the Kafka producer
func (p *Producer) Close() {
	p.logger.Info("Closing Kafka producer", "app", "voltcare")
	p.kafkaProducer.Close()
}
