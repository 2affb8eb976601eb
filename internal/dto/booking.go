package dto

import (
	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
)

// CheckAvailabilityRequest represents a public availability query
type CheckAvailabilityRequest struct {
	RoomID       string `json:"room_id" binding:"required"`
	CheckInDate  Date   `json:"check_in_date"`
	CheckOutDate Date   `json:"check_out_date"`
}

// AvailabilityResponse answers an availability query
type AvailabilityResponse struct {
	RoomID      string `json:"room_id"`
	IsAvailable bool   `json:"is_available"`
}

// CreateBookingRequest represents a request to book a room
type CreateBookingRequest struct {
	RoomID        string `json:"room_id" binding:"required"`
	CheckInDate   Date   `json:"check_in_date"`
	CheckOutDate  Date   `json:"check_out_date"`
	Guests        int    `json:"guests" binding:"min=0,max=50"`
	PaymentMethod string `json:"payment_method,omitempty" binding:"max=64"`
}

// UpdateBookingRequest is a partial update; absent fields are left untouched
type UpdateBookingRequest struct {
	CheckInDate   *Date   `json:"check_in_date,omitempty"`
	CheckOutDate  *Date   `json:"check_out_date,omitempty"`
	Guests        *int    `json:"guests,omitempty"`
	Status        *string `json:"status,omitempty" binding:"omitempty,oneof=pending confirmed cancelled"`
	PaymentMethod *string `json:"payment_method,omitempty" binding:"omitempty,max=64"`
	IsPaid        *bool   `json:"is_paid,omitempty"`
}

// ToPatch converts the request into a domain patch
func (r *UpdateBookingRequest) ToPatch() *domain.BookingPatch {
	patch := &domain.BookingPatch{
		Guests:        r.Guests,
		PaymentMethod: r.PaymentMethod,
		IsPaid:        r.IsPaid,
	}
	if r.CheckInDate != nil {
		t := r.CheckInDate.Time
		patch.CheckInDate = &t
	}
	if r.CheckOutDate != nil {
		t := r.CheckOutDate.Time
		patch.CheckOutDate = &t
	}
	if r.Status != nil {
		s := domain.BookingStatus(*r.Status)
		patch.Status = &s
	}
	return patch
}

// HotelBookingsResponse is the owner dashboard
type HotelBookingsResponse struct {
	Bookings      []*domain.Booking `json:"bookings"`
	TotalBookings int               `json:"total_bookings"`
	TotalRevenue  float64           `json:"total_revenue"`
}

// NewHotelBookingsResponse builds the dashboard from the owner's bookings
func NewHotelBookingsResponse(bookings []*domain.Booking) *HotelBookingsResponse {
	stats := domain.SummarizeBookings(bookings)
	return &HotelBookingsResponse{
		Bookings:      bookings,
		TotalBookings: stats.TotalBookings,
		TotalRevenue:  stats.TotalRevenue,
	}
}
