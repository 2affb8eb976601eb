package service

import (
	"context"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
)

// isHotelOwner resolves hotelID and compares its owner. A hotel that no
// longer exists has no owner.
func isHotelOwner(ctx context.Context, hotels repository.HotelRepository, hotelID, userID string) (bool, error) {
	hotel, err := hotels.GetHotel(ctx, hotelID)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return hotel.IsOwner(userID), nil
}

// authorizeBookingParty allows the booking's guest and the hotel owner
func authorizeBookingParty(ctx context.Context, hotels repository.HotelRepository, booking *domain.Booking, userID string) error {
	if booking.IsGuest(userID) {
		return nil
	}
	owner, err := isHotelOwner(ctx, hotels, booking.HotelID, userID)
	if err != nil {
		return err
	}
	if !owner {
		return domain.ErrNotBookingParty
	}
	return nil
}

// authorizePaymentParty allows the payer and the hotel owner
func authorizePaymentParty(ctx context.Context, hotels repository.HotelRepository, payment *domain.Payment, userID string) error {
	if payment.IsPayer(userID) {
		return nil
	}
	owner, err := isHotelOwner(ctx, hotels, payment.HotelID, userID)
	if err != nil {
		return err
	}
	if !owner {
		return domain.ErrNotPaymentParty
	}
	return nil
}

// authorizeHotelOwner allows only the owner of the payment's hotel
func authorizeHotelOwner(ctx context.Context, hotels repository.HotelRepository, hotelID, userID string) error {
	owner, err := isHotelOwner(ctx, hotels, hotelID, userID)
	if err != nil {
		return err
	}
	if !owner {
		return domain.ErrNotHotelOwner
	}
	return nil
}

// ownedHotelIDs lists the hotels of ownerID; an owner without hotels gets
// domain.ErrHotelNotFound.
func ownedHotelIDs(ctx context.Context, hotels repository.HotelRepository, ownerID string) ([]string, error) {
	owned, err := hotels.ListHotelsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, domain.ErrHotelNotFound
	}
	ids := make([]string, 0, len(owned))
	for _, h := range owned {
		ids = append(ids, h.ID)
	}
	return ids, nil
}
