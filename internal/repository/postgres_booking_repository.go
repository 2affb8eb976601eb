package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const bookingColumns = `
	id, user_id, room_id, hotel_id, check_in_date, check_out_date,
	guests, total_price, payment_method, status, is_paid, created_at, updated_at`

// PostgresBookingRepository implements BookingRepository on PostgreSQL
type PostgresBookingRepository struct {
	db Querier
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db Querier) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

// Create inserts a booking
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("room_id", booking.RoomID),
		attribute.String("user_id", booking.UserID),
	)

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.UserID,
		booking.RoomID,
		booking.HotelID,
		booking.CheckInDate,
		booking.CheckOutDate,
		booking.Guests,
		booking.TotalPrice,
		booking.PaymentMethod,
		booking.Status.String(),
		booking.IsPaid,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return mapWriteError("create booking", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("get booking", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// Update writes every mutable column of booking
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("status", booking.Status.String()),
		attribute.Bool("is_paid", booking.IsPaid),
	)

	query := `
		UPDATE bookings SET
			check_in_date = $2,
			check_out_date = $3,
			guests = $4,
			total_price = $5,
			payment_method = $6,
			status = $7,
			is_paid = $8,
			updated_at = $9
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.CheckInDate,
		booking.CheckOutDate,
		booking.Guests,
		booking.TotalPrice,
		booking.PaymentMethod,
		booking.Status.String(),
		booking.IsPaid,
		booking.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return mapWriteError("update booking", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete removes a booking; its payments go with it through the foreign key
func (r *PostgresBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.delete")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return mapWriteError("delete booking", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListByUser returns a user's bookings, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, span, "list user bookings", query, userID)
}

// ListByHotels returns the bookings of the given hotels, newest first
func (r *PostgresBookingRepository) ListByHotels(ctx context.Context, hotelIDs []string) ([]*domain.Booking, error) {
	if len(hotelIDs) == 0 {
		return []*domain.Booking{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_hotels")
	defer span.End()

	span.SetAttributes(attribute.Int("hotel_count", len(hotelIDs)))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE hotel_id = ANY($1) ORDER BY created_at DESC`
	return r.list(ctx, span, "list hotel bookings", query, hotelIDs)
}

// ListAll pages through every booking and returns the total count
func (r *PostgresBookingRepository) ListAll(ctx context.Context, limit, offset int) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_all")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit), attribute.Int("offset", offset))

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&total); err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, domain.StorageError("count bookings", err)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	bookings, err := r.list(ctx, span, "list bookings", query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// ActiveStays narrows with the inclusive window so both overlap policies
// can be applied to the result.
func (r *PostgresBookingRepository) ActiveStays(ctx context.Context, roomID string, from, to time.Time) ([]domain.Stay, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.active_stays")
	defer span.End()

	span.SetAttributes(attribute.String("room_id", roomID))

	query := `
		SELECT id, check_in_date, check_out_date
		FROM bookings
		WHERE room_id = $1
		  AND status <> 'cancelled'
		  AND check_in_date <= $3
		  AND check_out_date >= $2
	`

	rows, err := r.db.Query(ctx, query, roomID, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("query room stays", err)
	}
	defer rows.Close()

	stays := []domain.Stay{}
	for rows.Next() {
		var s domain.Stay
		if err := rows.Scan(&s.BookingID, &s.CheckIn, &s.CheckOut); err != nil {
			telemetry.RecordError(span, err)
			return nil, domain.StorageError("scan room stay", err)
		}
		stays = append(stays, s)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError("iterate room stays", err)
	}

	span.SetAttributes(attribute.Int("stay_count", len(stays)))
	span.SetStatus(codes.Ok, "")
	return stays, nil
}

func (r *PostgresBookingRepository) list(ctx context.Context, span trace.Span, op, query string, args ...any) ([]*domain.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError(op, err)
	}
	defer rows.Close()

	bookings := []*domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, domain.StorageError(op, err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError(op, err)
	}

	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	b := &domain.Booking{}
	var status string
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.RoomID,
		&b.HotelID,
		&b.CheckInDate,
		&b.CheckOutDate,
		&b.Guests,
		&b.TotalPrice,
		&b.PaymentMethod,
		&status,
		&b.IsPaid,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.CheckInDate = b.CheckInDate.UTC()
	b.CheckOutDate = b.CheckOutDate.UTC()
	return b, nil
}
