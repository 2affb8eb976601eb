package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/prohmpiriya/hotel-booking-engine/internal/gateway"
	"github.com/prohmpiriya/hotel-booking-engine/internal/metrics"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// PaymentService defines the interface for payment business logic
type PaymentService interface {
	// CreatePayment records a payment for the requester's booking
	CreatePayment(ctx context.Context, requesterID string, req *dto.CreatePaymentRequest) (*domain.Payment, error)

	// GetPayment retrieves a payment visible to requesterID
	GetPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)

	// GetPaymentByBooking returns the latest payment of a booking
	GetPaymentByBooking(ctx context.Context, bookingID, requesterID string) (*domain.Payment, error)

	// ConfirmPayment completes a pending payment (hotel owner only)
	ConfirmPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)

	// RefundPayment refunds a completed payment and cancels its booking
	RefundPayment(ctx context.Context, paymentID, requesterID string, req *dto.RefundPaymentRequest) (*domain.Payment, error)

	// UpdatePayment applies an owner-side partial update
	UpdatePayment(ctx context.Context, paymentID, requesterID string, patch *domain.PaymentPatch) (*domain.Payment, error)

	// DeletePayment hard-deletes a payment that is not completed
	DeletePayment(ctx context.Context, paymentID, requesterID string) error

	// ReconcileBooking recomputes booking.is_paid from its payments and
	// reports whether it changed
	ReconcileBooking(ctx context.Context, bookingID string) (bool, error)

	ListUserPayments(ctx context.Context, userID string) ([]*domain.Payment, error)
	HotelPayments(ctx context.Context, ownerID string) (*dto.HotelPaymentsResponse, error)
	ListAllPayments(ctx context.Context, q dto.PaginationQuery) (*dto.PaginatedResponse, error)
}

type paymentService struct {
	store           repository.Store
	availability    AvailabilityService
	gateway         gateway.PaymentGateway
	defaultCurrency domain.Currency
	log             *logger.Logger
}

// PaymentServiceConfig contains configuration for payment service
type PaymentServiceConfig struct {
	// Gateway is optional; without one payments are recorded as reported
	Gateway         gateway.PaymentGateway
	DefaultCurrency string
	Logger          *logger.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store repository.Store, availability AvailabilityService, cfg *PaymentServiceConfig) PaymentService {
	s := &paymentService{
		store:           store,
		availability:    availability,
		defaultCurrency: domain.DefaultCurrency,
		log:             logger.Get(),
	}
	if cfg != nil {
		s.gateway = cfg.Gateway
		if cfg.DefaultCurrency != "" {
			s.defaultCurrency = domain.Currency(strings.ToUpper(cfg.DefaultCurrency))
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	return s
}

func (s *paymentService) CreatePayment(ctx context.Context, requesterID string, req *dto.CreatePaymentRequest) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.create")
	defer span.End()
	defer metrics.ObserveDuration("payment.create", time.Now())

	if req == nil || strings.TrimSpace(req.BookingID) == "" {
		return nil, domain.NewValidationError("booking_id", "is required")
	}

	span.SetAttributes(
		attribute.String("booking_id", req.BookingID),
		attribute.String("payment_method", req.PaymentMethod),
	)

	booking, err := s.store.Bookings().GetByID(ctx, req.BookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !booking.IsGuest(requesterID) {
		telemetry.RecordError(span, domain.ErrNotBookingOwner)
		return nil, domain.ErrNotBookingOwner
	}

	currency := domain.Currency(strings.ToUpper(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	payment, err := domain.NewPayment(booking, requesterID, req.Amount, currency, domain.PaymentMethod(req.PaymentMethod), req.Details())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	charged := false
	if s.needsCharge(payment) {
		if err := ensureNoActivePayment(ctx, s.store.Payments(), booking.ID); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if err := s.charge(ctx, payment, req.CardToken); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		charged = true
	}

	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockBooking(ctx, booking.ID); err != nil {
			return err
		}
		if err := ensureNoActivePayment(ctx, tx.Payments(), booking.ID); err != nil {
			return err
		}

		current, err := tx.Bookings().GetByID(ctx, booking.ID)
		if err != nil {
			return err
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusCompleted {
			current.MarkPaid(true, string(payment.Method))
			if err := tx.Bookings().Update(ctx, current); err != nil {
				return err
			}
		}
		return appendPaymentEvent(ctx, tx, domain.EventPaymentCreated, payment, current.IsPaid)
	})
	if err != nil {
		if charged {
			s.reverseCharge(ctx, payment)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	metrics.RecordPaymentCreated(string(payment.Method), payment.Status.String(), string(payment.Currency), payment.Amount)
	s.log.InfoContext(ctx, "payment created",
		zap.String("payment_id", payment.ID),
		zap.String("booking_id", payment.BookingID),
		zap.String("status", payment.Status.String()),
		zap.Float64("amount", payment.Amount),
	)

	span.SetAttributes(attribute.String("payment_id", payment.ID))
	span.SetStatus(codes.Ok, "")
	return payment, nil
}

func (s *paymentService) needsCharge(payment *domain.Payment) bool {
	return s.gateway != nil && payment.Method != domain.PaymentMethodCash && payment.TransactionID == ""
}

// charge runs the payment through the gateway and stores the transaction id
// on success. A decline is ErrPaymentDeclined.
func (s *paymentService) charge(ctx context.Context, payment *domain.Payment, cardToken string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.charge")
	defer span.End()

	span.SetAttributes(attribute.String("gateway", s.gateway.Name()))

	resp, err := s.gateway.Charge(ctx, &gateway.ChargeRequest{
		PaymentID:   payment.ID,
		BookingID:   payment.BookingID,
		Amount:      payment.Amount,
		Currency:    string(payment.Currency),
		Method:      string(payment.Method),
		Description: "Booking " + payment.BookingID,
		CardToken:   cardToken,
		CustomerID:  payment.UserID,
	})
	if err != nil {
		metrics.RecordGatewayCharge(s.gateway.Name(), "error")
		telemetry.RecordError(span, err)
		return fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	if !resp.Success {
		metrics.RecordGatewayCharge(s.gateway.Name(), "declined")
		s.log.WarnContext(ctx, "payment declined",
			zap.String("booking_id", payment.BookingID),
			zap.String("failure_code", resp.FailureCode),
			zap.String("failure_reason", resp.FailureReason),
		)
		reason := resp.FailureReason
		if reason == "" {
			reason = resp.FailureCode
		}
		return fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, reason)
	}

	metrics.RecordGatewayCharge(s.gateway.Name(), "success")
	payment.TransactionID = resp.TransactionID
	span.SetAttributes(attribute.String("transaction_id", resp.TransactionID))
	return nil
}

// reverseCharge refunds a charge whose payment could not be stored
func (s *paymentService) reverseCharge(ctx context.Context, payment *domain.Payment) {
	ctx = context.WithoutCancel(ctx)
	if err := s.gateway.Refund(ctx, payment.TransactionID, payment.Amount); err != nil {
		s.log.ErrorContext(ctx, "failed to reverse gateway charge",
			zap.String("booking_id", payment.BookingID),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
		return
	}
	s.log.WarnContext(ctx, "gateway charge reversed",
		zap.String("booking_id", payment.BookingID),
		zap.String("transaction_id", payment.TransactionID),
	)
}

func (s *paymentService) refundAtGateway(ctx context.Context, payment *domain.Payment) error {
	if s.gateway == nil || payment.TransactionID == "" {
		return nil
	}
	if err := s.gateway.Refund(ctx, payment.TransactionID, payment.RefundAmount); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	return nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.get")
	defer span.End()

	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := authorizePaymentParty(ctx, s.store.Hotels(), payment, requesterID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) GetPaymentByBooking(ctx context.Context, bookingID, requesterID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.get_by_booking")
	defer span.End()

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := authorizeBookingParty(ctx, s.store.Hotels(), booking, requesterID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	payment, err := s.store.Payments().GetLatestByBooking(ctx, bookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) ConfirmPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", paymentID))

	var payment *domain.Payment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		payment, err = lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if err := authorizeHotelOwner(ctx, tx.Hotels(), payment.HotelID, requesterID); err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusPending {
			if err := ensureBookingOpen(ctx, tx, payment.BookingID); err != nil {
				return err
			}
		}
		if err := payment.Confirm(); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
		if _, err := setBookingPaid(ctx, tx, payment.BookingID, true, string(payment.Method)); err != nil {
			return err
		}
		return appendPaymentEvent(ctx, tx, domain.EventPaymentConfirmed, payment, true)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	metrics.RecordPaymentConfirmed(string(payment.Currency), payment.Amount)
	s.log.InfoContext(ctx, "payment confirmed",
		zap.String("payment_id", payment.ID),
		zap.String("receipt_number", payment.ReceiptNumber),
	)

	span.SetStatus(codes.Ok, "")
	return payment, nil
}

func (s *paymentService) RefundPayment(ctx context.Context, paymentID, requesterID string, req *dto.RefundPaymentRequest) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.refund")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", paymentID))

	if req == nil {
		req = &dto.RefundPaymentRequest{}
	}

	var (
		payment *domain.Payment
		roomID  string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		payment, err = lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if err := authorizeHotelOwner(ctx, tx.Hotels(), payment.HotelID, requesterID); err != nil {
			return err
		}
		if err := payment.Refund(req.RefundAmount, req.RefundReason); err != nil {
			return err
		}
		// money moves before the rows do; a gateway failure rolls back
		if err := s.refundAtGateway(ctx, payment); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
		roomID, err = cancelPaidBooking(ctx, tx, payment.BookingID)
		if err != nil {
			return err
		}
		return appendPaymentEvent(ctx, tx, domain.EventPaymentRefunded, payment, false)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.availability.Invalidate(ctx, roomID)
	metrics.RecordRefund()
	s.log.InfoContext(ctx, "payment refunded",
		zap.String("payment_id", payment.ID),
		zap.String("booking_id", payment.BookingID),
		zap.Float64("refund_amount", payment.RefundAmount),
	)

	span.SetStatus(codes.Ok, "")
	return payment, nil
}

func (s *paymentService) UpdatePayment(ctx context.Context, paymentID, requesterID string, patch *domain.PaymentPatch) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.update")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", paymentID))

	if patch == nil || patch.IsEmpty() {
		return nil, domain.NewValidationError("", "no fields to update")
	}

	var (
		payment *domain.Payment
		roomID  string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		payment, err = lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if err := authorizeHotelOwner(ctx, tx.Hotels(), payment.HotelID, requesterID); err != nil {
			return err
		}

		previous := payment.Status
		if patch.Status != nil {
			if err := payment.TransitionTo(*patch.Status); err != nil {
				return err
			}
		}
		if patch.TransactionID != nil {
			payment.TransactionID = *patch.TransactionID
		}
		if patch.Notes != nil {
			payment.Notes = *patch.Notes
		}
		payment.UpdatedAt = time.Now().UTC()

		event := domain.EventPaymentUpdated
		bookingIsPaid := false
		switch {
		case payment.Status == previous:
			paid, err := tx.Payments().HasCompleted(ctx, payment.BookingID)
			if err != nil {
				return err
			}
			bookingIsPaid = paid
		case payment.Status == domain.PaymentStatusCompleted:
			if err := ensureBookingOpen(ctx, tx, payment.BookingID); err != nil {
				return err
			}
			event = domain.EventPaymentConfirmed
			bookingIsPaid = true
			if _, err := setBookingPaid(ctx, tx, payment.BookingID, true, string(payment.Method)); err != nil {
				return err
			}
		case payment.Status == domain.PaymentStatusRefunded:
			event = domain.EventPaymentRefunded
			if err := s.refundAtGateway(ctx, payment); err != nil {
				return err
			}
			if roomID, err = cancelPaidBooking(ctx, tx, payment.BookingID); err != nil {
				return err
			}
		}

		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
		return appendPaymentEvent(ctx, tx, event, payment, bookingIsPaid)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if roomID != "" {
		s.availability.Invalidate(ctx, roomID)
	}
	s.log.InfoContext(ctx, "payment updated",
		zap.String("payment_id", payment.ID),
		zap.String("status", payment.Status.String()),
	)

	span.SetStatus(codes.Ok, "")
	return payment, nil
}

func (s *paymentService) DeletePayment(ctx context.Context, paymentID, requesterID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.delete")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", paymentID))

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		payment, err := lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if err := authorizePaymentParty(ctx, tx.Hotels(), payment, requesterID); err != nil {
			return err
		}
		if err := payment.CanDelete(); err != nil {
			return err
		}
		if err := tx.Payments().Delete(ctx, paymentID); err != nil {
			return err
		}
		paid, err := tx.Payments().HasCompleted(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		return appendPaymentEvent(ctx, tx, domain.EventPaymentDeleted, payment, paid)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.log.InfoContext(ctx, "payment deleted", zap.String("payment_id", paymentID))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *paymentService) ReconcileBooking(ctx context.Context, bookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.reconcile")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	var changed bool
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockBooking(ctx, bookingID); err != nil {
			return err
		}
		paid, err := tx.Payments().HasCompleted(ctx, bookingID)
		if err != nil {
			return err
		}
		changed, err = setBookingPaid(ctx, tx, bookingID, paid, "")
		return err
	})
	switch {
	case err != nil && domain.IsNotFound(err):
		metrics.RecordReconciliation("missing")
		telemetry.RecordError(span, err)
		return false, err
	case err != nil:
		metrics.RecordReconciliation("error")
		telemetry.RecordError(span, err)
		return false, err
	case changed:
		metrics.RecordReconciliation("repaired")
		s.log.WarnContext(ctx, "booking payment flag repaired", zap.String("booking_id", bookingID))
	default:
		metrics.RecordReconciliation("in_sync")
	}

	span.SetAttributes(attribute.Bool("changed", changed))
	span.SetStatus(codes.Ok, "")
	return changed, nil
}

func (s *paymentService) ListUserPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.list_user")
	defer span.End()

	payments, err := s.store.Payments().ListByUser(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return payments, nil
}

func (s *paymentService) HotelPayments(ctx context.Context, ownerID string) (*dto.HotelPaymentsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.hotel_dashboard")
	defer span.End()

	hotelIDs, err := ownedHotelIDs(ctx, s.store.Hotels(), ownerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	payments, err := s.store.Payments().ListByHotels(ctx, hotelIDs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return dto.NewHotelPaymentsResponse(payments), nil
}

func (s *paymentService) ListAllPayments(ctx context.Context, q dto.PaginationQuery) (*dto.PaginatedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.list_all")
	defer span.End()

	q.Normalize()
	payments, total, err := s.store.Payments().ListAll(ctx, q.PageSize, q.Offset())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return dto.NewPaginatedResponse(payments, total, q), nil
}

// ensureNoActivePayment fails with ErrPaymentAlreadyActive when the booking
// has a pending or completed payment.
func ensureNoActivePayment(ctx context.Context, payments repository.PaymentRepository, bookingID string) error {
	_, err := payments.GetActiveByBooking(ctx, bookingID)
	switch {
	case err == nil:
		return domain.ErrPaymentAlreadyActive
	case errors.Is(err, domain.ErrPaymentNotFound):
		return nil
	default:
		return err
	}
}

// lockPayment takes the lock of the payment's booking and re-reads the
// payment under it.
func lockPayment(ctx context.Context, tx repository.Tx, paymentID string) (*domain.Payment, error) {
	payment, err := tx.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := tx.LockBooking(ctx, payment.BookingID); err != nil {
		return nil, err
	}
	return tx.Payments().GetByID(ctx, paymentID)
}

// setBookingPaid writes the paid flag and reports whether it changed
func setBookingPaid(ctx context.Context, tx repository.Tx, bookingID string, paid bool, paymentMethod string) (bool, error) {
	booking, err := tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if booking.IsPaid == paid && (paymentMethod == "" || booking.PaymentMethod == paymentMethod) {
		return false, nil
	}
	changed := booking.IsPaid != paid
	booking.MarkPaid(paid, paymentMethod)
	return changed, tx.Bookings().Update(ctx, booking)
}

// ensureBookingOpen rejects taking money for a stay that was cancelled
// while its payment was still pending.
func ensureBookingOpen(ctx context.Context, tx repository.Tx, bookingID string) error {
	booking, err := tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status == domain.BookingStatusCancelled {
		return domain.ErrBookingCancelled
	}
	return nil
}

// cancelPaidBooking clears the paid flag and cancels the booking in one
// write. It returns the booking's room.
func cancelPaidBooking(ctx context.Context, tx repository.Tx, bookingID string) (string, error) {
	booking, err := tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return "", err
	}
	booking.Cancel()
	booking.MarkPaid(false, "")
	if err := tx.Bookings().Update(ctx, booking); err != nil {
		return "", err
	}
	return booking.RoomID, nil
}
