package service

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/prohmpiriya/hotel-booking-engine/internal/gateway"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	testGuest   = "guest-1"
	testOwner   = "owner-1"
	testOutside = "stranger-1"
	testRoom    = "room-1"
	testHotel   = "hotel-1"
)

func day(d int) time.Time {
	return time.Date(2024, time.June, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store        *repository.MemoryStore
	availability AvailabilityService
	bookings     BookingService
	payments     PaymentService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	allowBackToBack bool
	cache           repository.AvailabilityCache
	gateway         gateway.PaymentGateway
}

func withBackToBack() fixtureOption {
	return func(c *fixtureConfig) { c.allowBackToBack = true }
}

func withCache(cache repository.AvailabilityCache) fixtureOption {
	return func(c *fixtureConfig) { c.cache = cache }
}

func withGateway(gw gateway.PaymentGateway) fixtureOption {
	return func(c *fixtureConfig) { c.gateway = gw }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	store := repository.NewMemoryStore()
	store.AddHotel(&domain.Hotel{ID: testHotel, Name: "Lagoon", OwnerID: testOwner})
	store.AddRoom(&domain.Room{ID: testRoom, HotelID: testHotel, RoomType: "double", PricePerNight: 100, IsAvailable: true})

	availability := NewAvailabilityService(store, &AvailabilityServiceConfig{
		AllowBackToBack: cfg.allowBackToBack,
		Cache:           cfg.cache,
	})
	return &fixture{
		store:        store,
		availability: availability,
		bookings:     NewBookingService(store, availability, nil),
		payments:     NewPaymentService(store, availability, &PaymentServiceConfig{Gateway: cfg.gateway}),
	}
}

func bookingRequest(in, out int) *dto.CreateBookingRequest {
	return &dto.CreateBookingRequest{
		RoomID:       testRoom,
		CheckInDate:  dto.NewDate(day(in)),
		CheckOutDate: dto.NewDate(day(out)),
		Guests:       2,
	}
}

func (f *fixture) book(t *testing.T, in, out int) *domain.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), testGuest, bookingRequest(in, out))
	require.NoError(t, err)
	return b
}

func (f *fixture) pay(t *testing.T, bookingID, method string) *domain.Payment {
	t.Helper()
	p, err := f.payments.CreatePayment(context.Background(), testGuest, &dto.CreatePaymentRequest{
		BookingID:     bookingID,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) reload(t *testing.T, bookingID string) *domain.Booking {
	t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), bookingID)
	require.NoError(t, err)
	return b
}

func (f *fixture) outboxEvents(t *testing.T) []domain.EventType {
	t.Helper()
	msgs, err := f.store.Outbox().GetPendingMessages(context.Background(), 100)
	require.NoError(t, err)
	types := make([]domain.EventType, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.EventType)
	}
	return types
}

// MockAvailabilityCache is a Func-field AvailabilityCache
type MockAvailabilityCache struct {
	GetStaysFunc   func(ctx context.Context, roomID string, from, to time.Time) ([]domain.Stay, int64, bool, error)
	SetStaysFunc   func(ctx context.Context, roomID string, version int64, from, to time.Time, stays []domain.Stay) error
	InvalidateFunc func(ctx context.Context, roomID string) error
}

func (m *MockAvailabilityCache) GetStays(ctx context.Context, roomID string, from, to time.Time) ([]domain.Stay, int64, bool, error) {
	if m.GetStaysFunc != nil {
		return m.GetStaysFunc(ctx, roomID, from, to)
	}
	return nil, 0, false, nil
}

func (m *MockAvailabilityCache) SetStays(ctx context.Context, roomID string, version int64, from, to time.Time, stays []domain.Stay) error {
	if m.SetStaysFunc != nil {
		return m.SetStaysFunc(ctx, roomID, version, from, to, stays)
	}
	return nil
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, roomID string) error {
	if m.InvalidateFunc != nil {
		return m.InvalidateFunc(ctx, roomID)
	}
	return nil
}

// MockGateway is a Func-field PaymentGateway
type MockGateway struct {
	ChargeFunc func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error)
	RefundFunc func(ctx context.Context, transactionID string, amount float64) error
}

func (m *MockGateway) Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return &gateway.ChargeResponse{Success: true, TransactionID: "txn_test", Status: "completed"}, nil
}

func (m *MockGateway) Refund(ctx context.Context, transactionID string, amount float64) error {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, transactionID, amount)
	}
	return nil
}

func (m *MockGateway) GetTransaction(ctx context.Context, transactionID string) (*gateway.TransactionInfo, error) {
	return nil, gateway.ErrTransactionNotFound
}

func (m *MockGateway) Name() string {
	return "test"
}
