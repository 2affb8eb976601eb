package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	hotelColumns = `id, name, address, contact, city, owner_id, created_at, updated_at`
	roomColumns  = `id, hotel_id, room_type, price_per_night, amenities, images, is_available, created_at, updated_at`
)

// PostgresHotelRepository reads hotels and rooms from PostgreSQL
type PostgresHotelRepository struct {
	db Querier
}

// NewPostgresHotelRepository creates a new PostgresHotelRepository
func NewPostgresHotelRepository(db Querier) *PostgresHotelRepository {
	return &PostgresHotelRepository{db: db}
}

// GetHotel retrieves a hotel by its ID
func (r *PostgresHotelRepository) GetHotel(ctx context.Context, id string) (*domain.Hotel, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hotel.get")
	defer span.End()

	span.SetAttributes(attribute.String("hotel_id", id))

	h := &domain.Hotel{}
	err := r.db.QueryRow(ctx, `SELECT `+hotelColumns+` FROM hotels WHERE id = $1`, id).Scan(
		&h.ID, &h.Name, &h.Address, &h.Contact, &h.City, &h.OwnerID, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrHotelNotFound
		}
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("get hotel", err)
	}

	span.SetStatus(codes.Ok, "")
	return h, nil
}

// ListHotelsByOwner returns the hotels owned by ownerID
func (r *PostgresHotelRepository) ListHotelsByOwner(ctx context.Context, ownerID string) ([]*domain.Hotel, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.hotel.list_by_owner")
	defer span.End()

	span.SetAttributes(attribute.String("owner_id", ownerID))

	rows, err := r.db.Query(ctx, `SELECT `+hotelColumns+` FROM hotels WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("list owner hotels", err)
	}
	defer rows.Close()

	hotels := []*domain.Hotel{}
	for rows.Next() {
		h := &domain.Hotel{}
		if err := rows.Scan(&h.ID, &h.Name, &h.Address, &h.Contact, &h.City, &h.OwnerID, &h.CreatedAt, &h.UpdatedAt); err != nil {
			telemetry.RecordError(span, err)
			return nil, domain.StorageError("scan hotel", err)
		}
		hotels = append(hotels, h)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("list owner hotels", err)
	}

	span.SetStatus(codes.Ok, "")
	return hotels, nil
}

// GetRoom retrieves a room by its ID
func (r *PostgresHotelRepository) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.room.get")
	defer span.End()

	span.SetAttributes(attribute.String("room_id", id))

	room, err := scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrRoomNotFound
		}
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("get room", err)
	}

	span.SetStatus(codes.Ok, "")
	return room, nil
}

// ListRooms returns rooms matching filter
func (r *PostgresHotelRepository) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.room.list")
	defer span.End()

	span.SetAttributes(
		attribute.String("hotel_id", filter.HotelID),
		attribute.Bool("available_only", filter.AvailableOnly),
	)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + roomColumns + ` FROM rooms
		WHERE ($1 = '' OR hotel_id = $1)
		  AND (NOT $2 OR is_available)
		ORDER BY created_at
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, filter.HotelID, filter.AvailableOnly, limit, filter.Offset)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("list rooms", err)
	}
	defer rows.Close()

	rooms := []*domain.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, domain.StorageError("scan room", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("list rooms", err)
	}

	span.SetStatus(codes.Ok, "")
	return rooms, nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	room := &domain.Room{}
	err := row.Scan(
		&room.ID,
		&room.HotelID,
		&room.RoomType,
		&room.PricePerNight,
		&room.Amenities,
		&room.Images,
		&room.IsAvailable,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}
