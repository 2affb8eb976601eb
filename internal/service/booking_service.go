package service

import (
	"context"
	"strings"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/prohmpiriya/hotel-booking-engine/internal/metrics"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking books a room for userID if the dates are free
	CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*domain.Booking, error)

	// GetBooking retrieves a booking visible to requesterID
	GetBooking(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error)

	// UpdateBooking applies a partial update
	UpdateBooking(ctx context.Context, bookingID, requesterID string, patch *domain.BookingPatch) (*domain.Booking, error)

	// CancelBooking cancels a booking; cancelling twice succeeds
	CancelBooking(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error)

	// DeleteBooking hard-deletes a booking and its non-completed payments
	DeleteBooking(ctx context.Context, bookingID, requesterID string) error

	// ListUserBookings returns the caller's bookings, newest first
	ListUserBookings(ctx context.Context, userID string) ([]*domain.Booking, error)

	// HotelBookings returns the owner dashboard
	HotelBookings(ctx context.Context, ownerID string) (*dto.HotelBookingsResponse, error)

	// ListAllBookings pages through every booking
	ListAllBookings(ctx context.Context, q dto.PaginationQuery) (*dto.PaginatedResponse, error)
}

type bookingService struct {
	store                repository.Store
	availability         AvailabilityService
	defaultPaymentMethod string
	log                  *logger.Logger
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	DefaultPaymentMethod string
	Logger               *logger.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(store repository.Store, availability AvailabilityService, cfg *BookingServiceConfig) BookingService {
	s := &bookingService{
		store:                store,
		availability:         availability,
		defaultPaymentMethod: domain.DefaultPaymentMethod,
		log:                  logger.Get(),
	}
	if cfg != nil {
		if cfg.DefaultPaymentMethod != "" {
			s.defaultPaymentMethod = cfg.DefaultPaymentMethod
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	return s
}

func (s *bookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()
	defer metrics.ObserveDuration("booking.create", time.Now())

	if req == nil || strings.TrimSpace(req.RoomID) == "" {
		span.SetStatus(codes.Error, "invalid room_id")
		return nil, domain.NewValidationError("room_id", "is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	checkIn, checkOut := req.CheckInDate.Time, req.CheckOutDate.Time
	if err := domain.ValidateStay(checkIn, checkOut, req.Guests); err != nil {
		span.SetStatus(codes.Error, "invalid stay")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("room_id", req.RoomID),
	)

	paymentMethod := req.PaymentMethod
	if strings.TrimSpace(paymentMethod) == "" {
		paymentMethod = s.defaultPaymentMethod
	}

	var booking *domain.Booking
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockRoom(ctx, req.RoomID); err != nil {
			return err
		}

		available, err := checkStays(ctx, tx.Bookings(), s.availability.Policy(), req.RoomID, checkIn, checkOut, "")
		if err != nil {
			return err
		}
		if !available {
			return domain.ErrRoomUnavailable
		}

		room, err := tx.Hotels().GetRoom(ctx, req.RoomID)
		if err != nil {
			return err
		}

		booking, err = domain.NewBooking(userID, room, checkIn, checkOut, req.Guests, paymentMethod)
		if err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}
		return appendBookingEvent(ctx, tx, domain.EventBookingCreated, booking)
	})
	if err != nil {
		recordRejection(err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.availability.Invalidate(ctx, booking.RoomID)
	metrics.RecordBookingCreated(booking.HotelID)
	s.log.InfoContext(ctx, "booking created",
		zap.String("booking_id", booking.ID),
		zap.String("room_id", booking.RoomID),
		zap.Float64("total_price", booking.TotalPrice),
	)

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := authorizeBookingParty(ctx, s.store.Hotels(), booking, requesterID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) UpdateBooking(ctx context.Context, bookingID, requesterID string, patch *domain.BookingPatch) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.update")
	defer span.End()
	defer metrics.ObserveDuration("booking.update", time.Now())

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if patch == nil || patch.IsEmpty() {
		return nil, domain.NewValidationError("", "no fields to update")
	}

	var (
		booking   *domain.Booking
		oldRoomID string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockBooking(ctx, bookingID); err != nil {
			return err
		}

		var err error
		booking, err = tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorizeBookingParty(ctx, tx.Hotels(), booking, requesterID); err != nil {
			return err
		}
		if err := patch.Validate(booking); err != nil {
			return err
		}
		oldRoomID = booking.RoomID

		var pricePerNight float64
		if patch.ChangesDates() {
			if err := tx.LockRoom(ctx, booking.RoomID); err != nil {
				return err
			}
			checkIn, checkOut := patch.TargetDates(booking)
			available, err := checkStays(ctx, tx.Bookings(), s.availability.Policy(), booking.RoomID, checkIn, checkOut, booking.ID)
			if err != nil {
				return err
			}
			if !available {
				return domain.ErrRoomUnavailable
			}
			room, err := tx.Hotels().GetRoom(ctx, booking.RoomID)
			if err != nil {
				return err
			}
			pricePerNight = room.PricePerNight
		}

		if err := patch.Apply(booking, pricePerNight); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return err
		}
		return appendBookingEvent(ctx, tx, domain.EventBookingUpdated, booking)
	})
	if err != nil {
		recordRejection(err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	if patch.ChangesDates() || patch.Status != nil {
		s.availability.Invalidate(ctx, oldRoomID)
	}
	metrics.RecordBookingUpdated()
	s.log.InfoContext(ctx, "booking updated",
		zap.String("booking_id", booking.ID),
		zap.String("status", booking.Status.String()),
	)

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	var (
		booking *domain.Booking
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockBooking(ctx, bookingID); err != nil {
			return err
		}

		var err error
		booking, err = tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorizeBookingParty(ctx, tx.Hotels(), booking, requesterID); err != nil {
			return err
		}

		if changed = booking.Cancel(); !changed {
			return nil
		}
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return err
		}
		return appendBookingEvent(ctx, tx, domain.EventBookingCancelled, booking)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if changed {
		s.availability.Invalidate(ctx, booking.RoomID)
		metrics.RecordBookingCancelled()
		s.log.InfoContext(ctx, "booking cancelled", zap.String("booking_id", booking.ID))
	}

	span.SetAttributes(attribute.Bool("changed", changed))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) DeleteBooking(ctx context.Context, bookingID, requesterID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.delete")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	var booking *domain.Booking
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockBooking(ctx, bookingID); err != nil {
			return err
		}

		var err error
		booking, err = tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorizeBookingParty(ctx, tx.Hotels(), booking, requesterID); err != nil {
			return err
		}

		paid, err := tx.Payments().HasCompleted(ctx, bookingID)
		if err != nil {
			return err
		}
		if paid {
			return domain.ErrBookingHasCompletedPayment
		}

		if err := tx.Bookings().Delete(ctx, bookingID); err != nil {
			return err
		}
		return appendBookingEvent(ctx, tx, domain.EventBookingDeleted, booking)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.availability.Invalidate(ctx, booking.RoomID)
	metrics.RecordBookingDeleted()
	s.log.InfoContext(ctx, "booking deleted", zap.String("booking_id", bookingID))

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *bookingService) ListUserBookings(ctx context.Context, userID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_user")
	defer span.End()

	bookings, err := s.store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return bookings, nil
}

func (s *bookingService) HotelBookings(ctx context.Context, ownerID string) (*dto.HotelBookingsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.hotel_dashboard")
	defer span.End()

	hotelIDs, err := ownedHotelIDs(ctx, s.store.Hotels(), ownerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	bookings, err := s.store.Bookings().ListByHotels(ctx, hotelIDs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return dto.NewHotelBookingsResponse(bookings), nil
}

func (s *bookingService) ListAllBookings(ctx context.Context, q dto.PaginationQuery) (*dto.PaginatedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_all")
	defer span.End()

	q.Normalize()
	bookings, total, err := s.store.Bookings().ListAll(ctx, q.PageSize, q.Offset())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return dto.NewPaginatedResponse(bookings, total, q), nil
}
