package service

import (
	"context"
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

// AvailabilityService answers whether a room is free for a date range
type AvailabilityService interface {
	// IsAvailable checks the live calendar. A storage failure is an error,
	// never a false answer.
	IsAvailable(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeBookingID string) (bool, error)

	// CheckAvailability serves the public query and may use the cache
	CheckAvailability(ctx context.Context, req *dto.CheckAvailabilityRequest) (*dto.AvailabilityResponse, error)

	// Invalidate drops cached answers for a room after a committed write
	Invalidate(ctx context.Context, roomID string)

	// Policy returns the overlap rule in force
	Policy() domain.OverlapPolicy
}

type availabilityService struct {
	store  repository.Store
	cache  repository.AvailabilityCache
	policy domain.OverlapPolicy
	log    *logger.Logger
}

// AvailabilityServiceConfig contains configuration for the availability checker
type AvailabilityServiceConfig struct {
	AllowBackToBack bool
	// Cache is optional
	Cache  repository.AvailabilityCache
	Logger *logger.Logger
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(store repository.Store, cfg *AvailabilityServiceConfig) AvailabilityService {
	s := &availabilityService{
		store:  store,
		policy: domain.OverlapInclusive,
		log:    logger.Get(),
	}
	if cfg != nil {
		s.policy = domain.NewOverlapPolicy(cfg.AllowBackToBack)
		s.cache = cfg.Cache
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	return s
}

func (s *availabilityService) Policy() domain.OverlapPolicy {
	return s.policy
}

func (s *availabilityService) IsAvailable(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeBookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.is_available")
	defer span.End()

	span.SetAttributes(
		attribute.String("room_id", roomID),
		attribute.String("exclude_booking_id", excludeBookingID),
	)

	available, err := checkStays(ctx, s.store.Bookings(), s.policy, roomID, checkIn, checkOut, excludeBookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}

	metrics.RecordAvailabilityCheck(available, false)
	span.SetAttributes(attribute.Bool("available", available))
	span.SetStatus(codes.Ok, "")
	return available, nil
}

func (s *availabilityService) CheckAvailability(ctx context.Context, req *dto.CheckAvailabilityRequest) (*dto.AvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.check")
	defer span.End()

	if req == nil || req.RoomID == "" {
		return nil, domain.NewValidationError("room_id", "is required")
	}
	checkIn, checkOut := req.CheckInDate.Time, req.CheckOutDate.Time
	if err := domain.ValidateStay(checkIn, checkOut, 1); err != nil {
		span.SetStatus(codes.Error, "invalid dates")
		return nil, err
	}

	span.SetAttributes(attribute.String("room_id", req.RoomID))

	if _, err := s.store.Hotels().GetRoom(ctx, req.RoomID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var version int64
	cacheable := s.cache != nil
	if s.cache != nil {
		stays, v, ok, err := s.cache.GetStays(ctx, req.RoomID, checkIn, checkOut)
		if err != nil {
			// without a version a write back could outlive the next invalidation
			cacheable = false
			s.log.WarnContext(ctx, "availability cache read failed", zap.String("room_id", req.RoomID), zap.Error(err))
		}
		version = v
		if ok {
			available := s.policy.Available(stays, checkIn, checkOut, "")
			metrics.RecordAvailabilityCheck(available, true)
			span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Bool("available", available))
			return &dto.AvailabilityResponse{RoomID: req.RoomID, IsAvailable: available}, nil
		}
	}

	stays, err := s.store.Bookings().ActiveStays(ctx, req.RoomID, checkIn, checkOut)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if cacheable {
		if err := s.cache.SetStays(ctx, req.RoomID, version, checkIn, checkOut, stays); err != nil {
			s.log.WarnContext(ctx, "availability cache write failed", zap.String("room_id", req.RoomID), zap.Error(err))
		}
	}

	available := s.policy.Available(stays, checkIn, checkOut, "")
	metrics.RecordAvailabilityCheck(available, false)
	span.SetAttributes(attribute.Bool("available", available))
	span.SetStatus(codes.Ok, "")
	return &dto.AvailabilityResponse{RoomID: req.RoomID, IsAvailable: available}, nil
}

func (s *availabilityService) Invalidate(ctx context.Context, roomID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, roomID); err != nil {
		s.log.WarnContext(ctx, "availability cache invalidation failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// checkStays applies policy to the room's active stays as seen by bookings,
// which is a transaction's repository when called from a write path.
func checkStays(ctx context.Context, bookings repository.BookingRepository, policy domain.OverlapPolicy, roomID string, checkIn, checkOut time.Time, excludeBookingID string) (bool, error) {
	stays, err := bookings.ActiveStays(ctx, roomID, checkIn, checkOut)
	if err != nil {
		return false, err
	}
	return policy.Available(stays, checkIn, checkOut, excludeBookingID), nil
}
