package service

import (
	"context"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogService exposes the read-only hotel and room listings
type CatalogService interface {
	GetHotel(ctx context.Context, hotelID string) (*domain.Hotel, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	ListRooms(ctx context.Context, q dto.RoomListQuery) ([]*domain.Room, error)
}

type catalogService struct {
	hotels repository.HotelRepository
}

// NewCatalogService creates a new catalog service
func NewCatalogService(hotels repository.HotelRepository) CatalogService {
	return &catalogService{hotels: hotels}
}

func (s *catalogService) GetHotel(ctx context.Context, hotelID string) (*domain.Hotel, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.get_hotel")
	defer span.End()

	span.SetAttributes(attribute.String("hotel_id", hotelID))
	hotel, err := s.hotels.GetHotel(ctx, hotelID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return hotel, nil
}

func (s *catalogService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.get_room")
	defer span.End()

	span.SetAttributes(attribute.String("room_id", roomID))
	room, err := s.hotels.GetRoom(ctx, roomID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return room, nil
}

func (s *catalogService) ListRooms(ctx context.Context, q dto.RoomListQuery) ([]*domain.Room, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.list_rooms")
	defer span.End()

	q.Normalize()
	rooms, err := s.hotels.ListRooms(ctx, domain.RoomFilter{
		HotelID:       q.HotelID,
		AvailableOnly: q.AvailableOnly,
		Limit:         q.PageSize,
		Offset:        q.Offset(),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return rooms, nil
}
