package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
)

// BookingRepository defines booking data access
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
	// Delete removes the booking and, with it, its payments
	Delete(ctx context.Context, id string) error

	ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error)
	ListByHotels(ctx context.Context, hotelIDs []string) ([]*domain.Booking, error)
	ListAll(ctx context.Context, limit, offset int) ([]*domain.Booking, int, error)

	// ActiveStays returns the non-cancelled stays of a room that touch the
	// closed window [from, to]. The caller applies its overlap policy.
	ActiveStays(ctx context.Context, roomID string, from, to time.Time) ([]domain.Stay, error)
}

// PaymentRepository defines payment data access
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	Update(ctx context.Context, payment *domain.Payment) error
	Delete(ctx context.Context, id string) error

	// GetActiveByBooking returns the pending or completed payment of a booking
	GetActiveByBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
	// GetLatestByBooking returns the newest payment of a booking in any status
	GetLatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
	HasCompleted(ctx context.Context, bookingID string) (bool, error)

	ListByUser(ctx context.Context, userID string) ([]*domain.Payment, error)
	ListByHotels(ctx context.Context, hotelIDs []string) ([]*domain.Payment, error)
	ListAll(ctx context.Context, limit, offset int) ([]*domain.Payment, int, error)
}

// HotelRepository reads hotels and rooms
type HotelRepository interface {
	GetHotel(ctx context.Context, id string) (*domain.Hotel, error)
	ListHotelsByOwner(ctx context.Context, ownerID string) ([]*domain.Hotel, error)
	GetRoom(ctx context.Context, id string) (*domain.Room, error)
	ListRooms(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error)
}

// OutboxRepository defines outbox data access
type OutboxRepository interface {
	Create(ctx context.Context, msg *domain.OutboxMessage) error
	// GetPendingMessages locks up to limit pending rows for the current transaction
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	// GetFailedMessages locks up to limit failed rows that still have retries
	GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	MarkAsPublished(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, errMsg string) error
	ResetForRetry(ctx context.Context, id string) error
	DeletePublished(ctx context.Context, olderThanDays int) (int64, error)
}

// Repositories groups the repositories bound to one connection or transaction
type Repositories interface {
	Bookings() BookingRepository
	Payments() PaymentRepository
	Hotels() HotelRepository
	Outbox() OutboxRepository
}

// Tx is a unit of work. Locks are held until it commits or rolls back.
type Tx interface {
	Repositories

	// LockRoom serializes writers that check and change a room's calendar
	LockRoom(ctx context.Context, roomID string) error
	// LockBooking serializes writers of one booking and its payments
	LockBooking(ctx context.Context, bookingID string) error
}

// Store is the entry point to persistence
type Store interface {
	Repositories

	// WithTx runs fn in a transaction, committing when fn returns nil
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
