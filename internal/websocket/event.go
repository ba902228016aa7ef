package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents what happened to the entity
type EventType string

const (
	EventTypeCreated  EventType = "created"
	EventTypeEscrowed EventType = "escrowed"
	EventTypeReleased EventType = "released"
	EventTypeRefunded EventType = "refunded"
	EventTypeExpired  EventType = "expired"
	EventTypePaid     EventType = "paid"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypePayment EntityType = "payment"
	EntityTypeInvoice EntityType = "invoice"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "payment.escrowed"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "payment"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PaymentCreated creates a payment.created event
func PaymentCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypePayment, payload)
}

// PaymentEscrowed creates a payment.escrowed event
func PaymentEscrowed(payload interface{}) Event {
	return NewEvent(EventTypeEscrowed, EntityTypePayment, payload)
}

// PaymentReleased creates a payment.released event
func PaymentReleased(payload interface{}) Event {
	return NewEvent(EventTypeReleased, EntityTypePayment, payload)
}

// PaymentRefunded creates a payment.refunded event
func PaymentRefunded(payload interface{}) Event {
	return NewEvent(EventTypeRefunded, EntityTypePayment, payload)
}

// InvoicePaid creates an invoice.paid event
func InvoicePaid(payload interface{}) Event {
	return NewEvent(EventTypePaid, EntityTypeInvoice, payload)
}
