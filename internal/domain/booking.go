package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPaymentMethod is used when a booking request names none
const DefaultPaymentMethod = "pay at hotel"

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsValid checks if the status is a known BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

// Booking is a reservation of one room for a date range
type Booking struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	RoomID        string        `json:"room_id"`
	HotelID       string        `json:"hotel_id"`
	CheckInDate   time.Time     `json:"check_in_date"`
	CheckOutDate  time.Time     `json:"check_out_date"`
	Guests        int           `json:"guests"`
	TotalPrice    float64       `json:"total_price"`
	PaymentMethod string        `json:"payment_method"`
	Status        BookingStatus `json:"status"`
	IsPaid        bool          `json:"is_paid"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewBooking validates the request and prices the stay against room
func NewBooking(userID string, room *Room, checkIn, checkOut time.Time, guests int, paymentMethod string) (*Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewValidationError("user_id", "is required")
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if err := ValidateStay(checkIn, checkOut, guests); err != nil {
		return nil, err
	}

	nights, err := Nights(checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(paymentMethod) == "" {
		paymentMethod = DefaultPaymentMethod
	}

	now := time.Now().UTC()
	return &Booking{
		ID:            uuid.New().String(),
		UserID:        userID,
		RoomID:        room.ID,
		HotelID:       room.HotelID,
		CheckInDate:   checkIn.UTC(),
		CheckOutDate:  checkOut.UTC(),
		Guests:        guests,
		TotalPrice:    TotalPrice(room.PricePerNight, nights),
		PaymentMethod: paymentMethod,
		Status:        BookingStatusPending,
		IsPaid:        false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ValidateStay checks the date range and guest count
func ValidateStay(checkIn, checkOut time.Time, guests int) error {
	if checkIn.IsZero() {
		return NewValidationError("check_in_date", "is required")
	}
	if checkOut.IsZero() {
		return NewValidationError("check_out_date", "is required")
	}
	if !checkOut.After(checkIn) {
		return NewValidationError("check_out_date", "must be after check-in date")
	}
	if guests <= 0 {
		return NewValidationError("guests", "must be greater than zero")
	}
	return nil
}

// Nights is the ceiling of the day difference between the dates
func Nights(checkIn, checkOut time.Time) (int, error) {
	nights := int(math.Ceil(checkOut.Sub(checkIn).Hours() / 24))
	if nights <= 0 {
		return 0, NewValidationError("check_out_date", "stay must be at least one night")
	}
	return nights, nil
}

// TotalPrice multiplies the nightly rate by the number of nights
func TotalPrice(pricePerNight float64, nights int) float64 {
	return math.Round(pricePerNight*float64(nights)*100) / 100
}

// IsActive reports whether the booking still occupies its room
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}

// Stay returns the booking's occupied interval
func (b *Booking) Stay() Stay {
	return Stay{BookingID: b.ID, CheckIn: b.CheckInDate, CheckOut: b.CheckOutDate}
}

// IsGuest reports whether userID made the booking
func (b *Booking) IsGuest(userID string) bool {
	return userID != "" && b.UserID == userID
}

// CanTransitionTo checks the booking status graph.
// pending -> confirmed | cancelled, confirmed -> cancelled; same -> same is allowed.
func (b *Booking) CanTransitionTo(next BookingStatus) error {
	if !next.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown booking status %q", next))
	}
	if b.Status == next {
		return nil
	}

	switch b.Status {
	case BookingStatusPending:
		return nil
	case BookingStatusConfirmed:
		if next == BookingStatusCancelled {
			return nil
		}
	}
	return fmt.Errorf("%w: booking cannot move from %s to %s", ErrInvalidState, b.Status, next)
}

// Cancel marks the booking cancelled. It reports false when it already was.
func (b *Booking) Cancel() bool {
	if b.Status == BookingStatusCancelled {
		return false
	}
	b.Status = BookingStatusCancelled
	b.UpdatedAt = time.Now().UTC()
	return true
}

// MarkPaid sets the paid flag and, when non-empty, the payment method
func (b *Booking) MarkPaid(paid bool, paymentMethod string) {
	b.IsPaid = paid
	if paymentMethod != "" {
		b.PaymentMethod = paymentMethod
	}
	b.UpdatedAt = time.Now().UTC()
}

// BookingPatch is a partial update. Nil fields are left untouched.
type BookingPatch struct {
	CheckInDate   *time.Time
	CheckOutDate  *time.Time
	Guests        *int
	Status        *BookingStatus
	PaymentMethod *string
	IsPaid        *bool
}

// ChangesDates reports whether either date is present
func (p *BookingPatch) ChangesDates() bool {
	return p.CheckInDate != nil || p.CheckOutDate != nil
}

// IsEmpty reports whether no field is present
func (p *BookingPatch) IsEmpty() bool {
	return !p.ChangesDates() && p.Guests == nil && p.Status == nil && p.PaymentMethod == nil && p.IsPaid == nil
}

// TargetDates merges the patched dates over the booking's current ones
func (p *BookingPatch) TargetDates(b *Booking) (checkIn, checkOut time.Time) {
	checkIn, checkOut = b.CheckInDate, b.CheckOutDate
	if p.CheckInDate != nil {
		checkIn = p.CheckInDate.UTC()
	}
	if p.CheckOutDate != nil {
		checkOut = p.CheckOutDate.UTC()
	}
	return checkIn, checkOut
}

// Validate checks the patch against the booking without mutating it.
// Date availability is checked by the caller.
func (p *BookingPatch) Validate(b *Booking) error {
	if p.IsEmpty() {
		return NewValidationError("", "no fields to update")
	}
	if p.Guests != nil && *p.Guests <= 0 {
		return NewValidationError("guests", "must be greater than zero")
	}
	if p.PaymentMethod != nil && strings.TrimSpace(*p.PaymentMethod) == "" {
		return NewValidationError("payment_method", "cannot be empty")
	}
	if p.ChangesDates() {
		if b.Status == BookingStatusCancelled {
			return fmt.Errorf("%w: cannot change dates", ErrBookingCancelled)
		}
		checkIn, checkOut := p.TargetDates(b)
		guests := b.Guests
		if p.Guests != nil {
			guests = *p.Guests
		}
		if err := ValidateStay(checkIn, checkOut, guests); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if err := b.CanTransitionTo(*p.Status); err != nil {
			return err
		}
	}
	return nil
}

// Apply writes the patch onto b. pricePerNight is only read when the dates
// change. Call Validate first.
func (p *BookingPatch) Apply(b *Booking, pricePerNight float64) error {
	if p.ChangesDates() {
		checkIn, checkOut := p.TargetDates(b)
		nights, err := Nights(checkIn, checkOut)
		if err != nil {
			return err
		}
		b.CheckInDate = checkIn
		b.CheckOutDate = checkOut
		b.TotalPrice = TotalPrice(pricePerNight, nights)
	}
	if p.Guests != nil {
		b.Guests = *p.Guests
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.PaymentMethod != nil {
		b.PaymentMethod = *p.PaymentMethod
	}
	if p.IsPaid != nil {
		b.IsPaid = *p.IsPaid
	}
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// BookingStats aggregates an owner's bookings
type BookingStats struct {
	TotalBookings int     `json:"total_bookings"`
	TotalRevenue  float64 `json:"total_revenue"`
}

// SummarizeBookings counts bookings and sums revenue of the active ones
func SummarizeBookings(bookings []*Booking) BookingStats {
	stats := BookingStats{TotalBookings: len(bookings)}
	for _, b := range bookings {
		if b.IsActive() {
			stats.TotalRevenue += b.TotalPrice
		}
	}
	stats.TotalRevenue = math.Round(stats.TotalRevenue*100) / 100
	return stats
}
