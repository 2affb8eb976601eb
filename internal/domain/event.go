package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kafka topics
const (
	TopicBookingEvents = "booking-events"
	TopicPaymentEvents = "payment-events"
)

// EventType names a domain event
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingUpdated   EventType = "booking.updated"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingDeleted   EventType = "booking.deleted"

	EventPaymentCreated   EventType = "payment.created"
	EventPaymentConfirmed EventType = "payment.confirmed"
	EventPaymentRefunded  EventType = "payment.refunded"
	EventPaymentUpdated   EventType = "payment.updated"
	EventPaymentDeleted   EventType = "payment.deleted"
)

// BookingEvent is the payload published on booking-events
type BookingEvent struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Booking    *Booking  `json:"booking"`
}

// PaymentEvent is the payload published on payment-events. BookingIsPaid
// is the paid flag written in the same transaction.
type PaymentEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	BookingID     string    `json:"booking_id"`
	BookingIsPaid bool      `json:"booking_is_paid"`
	Payment       *Payment  `json:"payment"`
}

// NewBookingEvent snapshots booking into an event
func NewBookingEvent(eventType EventType, booking *Booking) *BookingEvent {
	snapshot := *booking
	return &BookingEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Booking:    &snapshot,
	}
}

// NewPaymentEvent snapshots payment into an event
func NewPaymentEvent(eventType EventType, payment *Payment, bookingIsPaid bool) *PaymentEvent {
	snapshot := *payment
	return &PaymentEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		BookingID:     payment.BookingID,
		BookingIsPaid: bookingIsPaid,
		Payment:       &snapshot,
	}
}
