package service

import (
	"context"
	"errors"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/metrics"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
)

// appendBookingEvent writes a booking event to the outbox of tx
func appendBookingEvent(ctx context.Context, tx repository.Tx, eventType domain.EventType, booking *domain.Booking) error {
	msg, err := domain.BookingOutboxMessage(eventType, booking)
	if err != nil {
		return err
	}
	msg.TraceContext = telemetry.InjectMap(ctx)
	return tx.Outbox().Create(ctx, msg)
}

// appendPaymentEvent writes a payment event to the outbox of tx
func appendPaymentEvent(ctx context.Context, tx repository.Tx, eventType domain.EventType, payment *domain.Payment, bookingIsPaid bool) error {
	msg, err := domain.PaymentOutboxMessage(eventType, payment, bookingIsPaid)
	if err != nil {
		return err
	}
	msg.TraceContext = telemetry.InjectMap(ctx)
	return tx.Outbox().Create(ctx, msg)
}

func recordRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrRoomUnavailable):
		metrics.RecordBookingRejected("room_unavailable")
	case errors.Is(err, domain.ErrValidation):
		metrics.RecordBookingRejected("validation")
	case errors.Is(err, domain.ErrForbidden):
		metrics.RecordBookingRejected("forbidden")
	case errors.Is(err, domain.ErrInvalidState):
		metrics.RecordBookingRejected("invalid_state")
	case errors.Is(err, domain.ErrStorageUnavailable):
		metrics.RecordBookingRejected("storage")
	}
}
