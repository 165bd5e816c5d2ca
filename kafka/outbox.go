package kafka

import (
	"context"
	"time"

	"log/slog"

	"voltcare/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OutboxProcessor drains the outbox and publishes pending events to Kafka.
type OutboxProcessor struct {
	store    domain.Store
	producer *Producer
	logger   *slog.Logger
}

// NewOutboxProcessor creates a new OutboxProcessor
func NewOutboxProcessor(store domain.Store, producer *Producer, logger *slog.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		store:    store,
		producer: producer,
		logger:   logger,
	}
}

// Start polls the outbox until the context is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	_, span := otel.Tracer("voltcare").Start(ctx, "OutboxProcessorStart")
	defer span.End()

	p.logger.Info("Outbox processor started", "app", "voltcare")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping outbox processor", "app", "voltcare")
			return ctx.Err()
		case <-ticker.C:
			if err := p.processOutboxEvents(ctx); err != nil {
				p.logger.Error("Failed to process outbox events", "error", err, "app", "voltcare")
			}
		}
	}
}

// processOutboxEvents retrieves and publishes unprocessed outbox events.
// Events that fail to publish stay unprocessed and are retried on the next
// tick, so the ordering guarantee is per service, not per poll.
func (p *OutboxProcessor) processOutboxEvents(ctx context.Context) error {
	_, span := otel.Tracer("voltcare").Start(ctx, "ProcessOutboxEvents")
	defer span.End()

	events, err := p.store.UnprocessedOutboxEvents(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get unprocessed outbox events")
		return err
	}
	if len(events) == 0 {
		return nil
	}

	p.logger.Info("Found unprocessed outbox events", "count", len(events), "app", "voltcare")
	for _, event := range events {
		if err := p.producer.PublishOutboxEvent(ctx, event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to publish outbox event")
			p.logger.Error("Failed to publish outbox event", "eventID", event.ID, "error", err, "app", "voltcare")
			continue
		}

		if err := p.store.MarkOutboxEventProcessed(ctx, event.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to mark outbox event as processed")
			p.logger.Error("Failed to mark outbox event as processed", "eventID", event.ID, "error", err, "app", "voltcare")
			continue
		}
		p.logger.Info("Processed outbox event", "eventID", event.ID, "eventType", event.EventType, "app", "voltcare")
	}

	span.SetAttributes(
		attribute.Int("processedEventCount", len(events)),
	)
	return nil
}
