package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxRetries bounds publish attempts per message
const DefaultOutboxMaxRetries = 5

// IsValid checks if the status is a valid OutboxStatus
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusPublished, OutboxStatusFailed:
		return true
	}
	return false
}

func (s OutboxStatus) String() string {
	return string(s)
}

// OutboxMessage is an event row written in the same transaction as the
// state change it describes.
type OutboxMessage struct {
	ID            string       `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id"`
	EventType     EventType    `json:"event_type"`
	Payload       []byte       `json:"payload"`
	Topic         string       `json:"topic"`
	PartitionKey  string       `json:"partition_key"`
	// TraceContext carries the propagation headers of the writing request
	TraceContext map[string]string `json:"trace_context,omitempty"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}

// NewOutboxMessage marshals payload into a pending message
func NewOutboxMessage(aggregateType, aggregateID string, eventType EventType, topic, partitionKey string, payload interface{}) (*OutboxMessage, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if partitionKey == "" {
		partitionKey = aggregateID
	}

	return &OutboxMessage{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payloadBytes,
		Topic:         topic,
		PartitionKey:  partitionKey,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CanRetry checks if a failed message has attempts left
func (m *OutboxMessage) CanRetry() bool {
	return m.Status == OutboxStatusFailed && m.RetryCount < m.MaxRetries
}

// MarkAsPublished marks the message as delivered
func (m *OutboxMessage) MarkAsPublished() {
	now := time.Now().UTC()
	m.Status = OutboxStatusPublished
	m.PublishedAt = &now
	m.ProcessedAt = &now
}

// MarkAsFailed records a failed publish attempt
func (m *OutboxMessage) MarkAsFailed(err string) {
	now := time.Now().UTC()
	m.Status = OutboxStatusFailed
	m.LastError = err
	m.RetryCount++
	m.ProcessedAt = &now
}

// ResetForRetry puts a failed message back in the queue
func (m *OutboxMessage) ResetForRetry() {
	m.Status = OutboxStatusPending
	m.ProcessedAt = nil
}

// Headers are attached to the published record. Trace context keys never
// override the fixed ones.
func (m *OutboxMessage) Headers() map[string]string {
	headers := make(map[string]string, len(m.TraceContext)+4)
	for k, v := range m.TraceContext {
		headers[k] = v
	}
	headers["event_type"] = string(m.EventType)
	headers["aggregate_type"] = m.AggregateType
	headers["aggregate_id"] = m.AggregateID
	headers["outbox_id"] = m.ID
	return headers
}

// BookingOutboxMessage wraps a booking event for the outbox. Booking events
// are keyed by room so a room's history stays ordered.
func BookingOutboxMessage(eventType EventType, booking *Booking) (*OutboxMessage, error) {
	return NewOutboxMessage("booking", booking.ID, eventType, TopicBookingEvents, booking.RoomID, NewBookingEvent(eventType, booking))
}

// PaymentOutboxMessage wraps a payment event for the outbox, keyed by booking
func PaymentOutboxMessage(eventType EventType, payment *Payment, bookingIsPaid bool) (*OutboxMessage, error) {
	return NewOutboxMessage("payment", payment.ID, eventType, TopicPaymentEvents, payment.BookingID, NewPaymentEvent(eventType, payment, bookingIsPaid))
}
