package domain

import "time"

// Hotel is owned by the hotel-management system; this service only reads it
// to resolve ownership.
type Hotel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Contact   string    `json:"contact"`
	City      string    `json:"city"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOwner reports whether userID owns the hotel
func (h *Hotel) IsOwner(userID string) bool {
	return userID != "" && h.OwnerID == userID
}

// Room is read-only here; its price drives booking totals
type Room struct {
	ID            string    `json:"id"`
	HotelID       string    `json:"hotel_id"`
	RoomType      string    `json:"room_type"`
	PricePerNight float64   `json:"price_per_night"`
	Amenities     []string  `json:"amenities"`
	Images        []string  `json:"images"`
	IsAvailable   bool      `json:"is_available"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RoomFilter narrows room listings
type RoomFilter struct {
	HotelID       string
	AvailableOnly bool
	Limit         int
	Offset        int
}
