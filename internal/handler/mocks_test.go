package handler

import (
	"context"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc    func(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*domain.Booking, error)
	GetBookingFunc       func(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error)
	UpdateBookingFunc    func(ctx context.Context, bookingID, requesterID string, patch *domain.BookingPatch) (*domain.Booking, error)
	CancelBookingFunc    func(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error)
	DeleteBookingFunc    func(ctx context.Context, bookingID, requesterID string) error
	ListUserBookingsFunc func(ctx context.Context, userID string) ([]*domain.Booking, error)
	HotelBookingsFunc    func(ctx context.Context, ownerID string) (*dto.HotelBookingsResponse, error)
	ListAllBookingsFunc  func(ctx context.Context, q dto.PaginationQuery) (*dto.PaginatedResponse, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*domain.Booking, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, userID, req)
	}
	return &domain.Booking{}, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, requesterID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingService) UpdateBooking(ctx context.Context, bookingID, requesterID string, patch *domain.BookingPatch) (*domain.Booking, error) {
	if m.UpdateBookingFunc != nil {
		return m.UpdateBookingFunc(ctx, bookingID, requesterID, patch)
	}
	return &domain.Booking{ID: bookingID}, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, requesterID)
	}
	return &domain.Booking{ID: bookingID, Status: domain.BookingStatusCancelled}, nil
}

func (m *MockBookingService) DeleteBooking(ctx context.Context, bookingID, requesterID string) error {
	if m.DeleteBookingFunc != nil {
		return m.DeleteBookingFunc(ctx, bookingID, requesterID)
	}
	return nil
}

func (m *MockBookingService) ListUserBookings(ctx context.Context, userID string) ([]*domain.Booking, error) {
	if m.ListUserBookingsFunc != nil {
		return m.ListUserBookingsFunc(ctx, userID)
	}
	return []*domain.Booking{}, nil
}

func (m *MockBookingService) HotelBookings(ctx context.Context, ownerID string) (*dto.HotelBookingsResponse, error) {
	if m.HotelBookingsFunc != nil {
		return m.HotelBookingsFunc(ctx, ownerID)
	}
	return dto.NewHotelBookingsResponse(nil), nil
}

func (m *MockBookingService) ListAllBookings(ctx context.Context, q dto.PaginationQuery) (*dto.PaginatedResponse, error) {
	if m.ListAllBookingsFunc != nil {
		return m.ListAllBookingsFunc(ctx, q)
	}
	q.Normalize()
	return dto.NewPaginatedResponse([]*domain.Booking{}, 0, q), nil
}

// MockAvailabilityService is a mock implementation of AvailabilityService
type MockAvailabilityService struct {
	CheckAvailabilityFunc func(ctx context.Context, req *dto.CheckAvailabilityRequest) (*dto.AvailabilityResponse, error)
}

func (m *MockAvailabilityService) IsAvailable(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeBookingID string) (bool, error) {
	return true, nil
}

func (m *MockAvailabilityService) CheckAvailability(ctx context.Context, req *dto.CheckAvailabilityRequest) (*dto.AvailabilityResponse, error) {
	if m.CheckAvailabilityFunc != nil {
		return m.CheckAvailabilityFunc(ctx, req)
	}
	return &dto.AvailabilityResponse{RoomID: req.RoomID, IsAvailable: true}, nil
}

func (m *MockAvailabilityService) Invalidate(ctx context.Context, roomID string) {}

func (m *MockAvailabilityService) Policy() domain.OverlapPolicy {
	return domain.OverlapInclusive
}

// MockPaymentService is a mock implementation of PaymentService
type MockPaymentService struct {
	CreatePaymentFunc       func(ctx context.Context, requesterID string, req *dto.CreatePaymentRequest) (*domain.Payment, error)
	GetPaymentFunc          func(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)
	GetPaymentByBookingFunc func(ctx context.Context, bookingID, requesterID string) (*domain.Payment, error)
	ConfirmPaymentFunc      func(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)
	RefundPaymentFunc       func(ctx context.Context, paymentID, requesterID string, req *dto.RefundPaymentRequest) (*domain.Payment, error)
	UpdatePaymentFunc       func(ctx context.Context, paymentID, requesterID string, patch *domain.PaymentPatch) (*domain.Payment, error)
	DeletePaymentFunc       func(ctx context.Context, paymentID, requesterID string) error
}

func (m *MockPaymentService) CreatePayment(ctx context.Context, requesterID string, req *dto.CreatePaymentRequest) (*domain.Payment, error) {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, requesterID, req)
	}
	return &domain.Payment{BookingID: req.BookingID}, nil
}

func (m *MockPaymentService) GetPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error) {
	if m.GetPaymentFunc != nil {
		return m.GetPaymentFunc(ctx, paymentID, requesterID)
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *MockPaymentService) GetPaymentByBooking(ctx context.Context, bookingID, requesterID string) (*domain.Payment, error) {
	if m.GetPaymentByBookingFunc != nil {
		return m.GetPaymentByBookingFunc(ctx, bookingID, requesterID)
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *MockPaymentService) ConfirmPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error) {
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, paymentID, requesterID)
	}
	return &domain.Payment{ID: paymentID, Status: domain.PaymentStatusCompleted}, nil
}

func (m *MockPaymentService) RefundPayment(ctx context.Context, paymentID, requesterID string, req *dto.RefundPaymentRequest) (*domain.Payment, error) {
	if m.RefundPaymentFunc != nil {
		return m.RefundPaymentFunc(ctx, paymentID, requesterID, req)
	}
	return &domain.Payment{ID: paymentID, Status: domain.PaymentStatusRefunded}, nil
}

func (m *MockPaymentService) UpdatePayment(ctx context.Context, paymentID, requesterID string, patch *domain.PaymentPatch) (*domain.Payment, error) {
	if m.UpdatePaymentFunc != nil {
		return m.UpdatePaymentFunc(ctx, paymentID, requesterID, patch)
	}
	return &domain.Payment{ID: paymentID}, nil
}

func (m *MockPaymentService) DeletePayment(ctx context.Context, paymentID, requesterID string) error {
	if m.DeletePaymentFunc != nil {
		return m.DeletePaymentFunc(ctx, paymentID, requesterID)
	}
	return nil
}

func (m *MockPaymentService) ReconcileBooking(ctx context.Context, bookingID string) (bool, error) {
	return false, nil
}

func (m *MockPaymentService) ListUserPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	return []*domain.Payment{}, nil
}

func (m *MockPaymentService) HotelPayments(ctx context.Context, ownerID string) (*dto.HotelPaymentsResponse, error) {
	return dto.NewHotelPaymentsResponse(nil), nil
}

func (m *MockPaymentService) ListAllPayments(ctx context.Context, q dto.PaginationQuery) (*dto.PaginatedResponse, error) {
	q.Normalize()
	return dto.NewPaginatedResponse([]*domain.Payment{}, 0, q), nil
}

// MockCatalogService is a mock implementation of CatalogService
type MockCatalogService struct {
	GetHotelFunc  func(ctx context.Context, hotelID string) (*domain.Hotel, error)
	GetRoomFunc   func(ctx context.Context, roomID string) (*domain.Room, error)
	ListRoomsFunc func(ctx context.Context, q dto.RoomListQuery) ([]*domain.Room, error)
}

func (m *MockCatalogService) GetHotel(ctx context.Context, hotelID string) (*domain.Hotel, error) {
	if m.GetHotelFunc != nil {
		return m.GetHotelFunc(ctx, hotelID)
	}
	return nil, domain.ErrHotelNotFound
}

func (m *MockCatalogService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, roomID)
	}
	return nil, domain.ErrRoomNotFound
}

func (m *MockCatalogService) ListRooms(ctx context.Context, q dto.RoomListQuery) ([]*domain.Room, error) {
	if m.ListRoomsFunc != nil {
		return m.ListRoomsFunc(ctx, q)
	}
	return []*domain.Room{}, nil
}
