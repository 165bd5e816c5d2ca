package domain

import "time"

// Service event types published through the outbox.
const (
	EventServiceRequested = "service_requested"
	EventServiceAssigned  = "service_assigned"
	EventServiceCompleted = "service_completed"
	EventServiceCancelled = "service_cancelled"
)

// ServiceEvent is the payload carried by outbox events and published to the
// service-events topic. Field names mirror service_event.avsc.
type ServiceEvent struct {
	ServiceID  string    `json:"service_id" avro:"service_id"`
	CustomerID string    `json:"customer_id" avro:"customer_id"`
	PartnerID  string    `json:"partner_id" avro:"partner_id"`
	Status     string    `json:"status" avro:"status"`
	Priority   string    `json:"priority" avro:"priority"`
	EventType  string    `json:"event_type" avro:"event_type"`
	OccurredAt time.Time `json:"occurred_at" avro:"occurred_at"`
}
