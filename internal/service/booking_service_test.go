package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_PricesStay(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, 10, 13)

	assert.Equal(t, 300.0, b.TotalPrice)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.False(t, b.IsPaid)
	assert.Equal(t, testHotel, b.HotelID)
	assert.Equal(t, domain.DefaultPaymentMethod, b.PaymentMethod)
	assert.Equal(t, []domain.EventType{domain.EventBookingCreated}, f.outboxEvents(t))
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *dto.CreateBookingRequest
	}{
		{"missing room", &dto.CreateBookingRequest{CheckInDate: dto.NewDate(day(10)), CheckOutDate: dto.NewDate(day(12)), Guests: 1}},
		{"checkout before checkin", bookingRequest(12, 10)},
		{"same day", bookingRequest(12, 12)},
		{"no guests", &dto.CreateBookingRequest{RoomID: testRoom, CheckInDate: dto.NewDate(day(10)), CheckOutDate: dto.NewDate(day(12))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bookings.CreateBooking(ctx, testGuest, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.outboxEvents(t))
}

func TestCreateBooking_UnknownRoom(t *testing.T) {
	f := newFixture(t)
	req := bookingRequest(10, 12)
	req.RoomID = "room-404"

	_, err := f.bookings.CreateBooking(context.Background(), testGuest, req)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCreateBooking_ConcurrentOverlapOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 25
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		unavailable int
		others      []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every request overlaps Jun 10-14
			_, err := f.bookings.CreateBooking(ctx, testGuest, bookingRequest(10+i%3, 14))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrRoomUnavailable):
				unavailable++
			default:
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, unavailable)
	assert.Empty(t, others)

	stays, err := f.store.Bookings().ActiveStays(ctx, testRoom, day(1), day(30))
	require.NoError(t, err)
	assert.Len(t, stays, 1)
}

func TestCreateBooking_BackToBack(t *testing.T) {
	t.Run("inclusive by default", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, 10, 15)

		_, err := f.bookings.CreateBooking(context.Background(), testGuest, bookingRequest(15, 17))
		assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	})

	t.Run("half-open when allowed", func(t *testing.T) {
		f := newFixture(t, withBackToBack())
		f.book(t, 10, 15)

		b, err := f.bookings.CreateBooking(context.Background(), testGuest, bookingRequest(15, 17))
		require.NoError(t, err)
		assert.Equal(t, 200.0, b.TotalPrice)

		_, err = f.bookings.CreateBooking(context.Background(), testGuest, bookingRequest(14, 15))
		assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	})
}

func TestCreateBooking_CancelledStaysDoNotBlock(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, 10, 15)

	_, err := f.bookings.CancelBooking(context.Background(), b.ID, testGuest)
	require.NoError(t, err)

	f.book(t, 11, 14)
}

func TestUpdateBooking_ExcludesItself(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 15)

	newOut := day(16)
	updated, err := f.bookings.UpdateBooking(ctx, b.ID, testGuest, &domain.BookingPatch{CheckOutDate: &newOut})
	require.NoError(t, err)

	assert.True(t, updated.CheckOutDate.Equal(day(16)))
	assert.True(t, updated.CheckInDate.Equal(day(10)))
	assert.Equal(t, 600.0, updated.TotalPrice)
	assert.Equal(t, 600.0, f.reload(t, b.ID).TotalPrice)
}

func TestUpdateBooking_DateConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, 10, 12)
	second := f.book(t, 20, 22)

	newIn := day(11)
	_, err := f.bookings.UpdateBooking(ctx, second.ID, testGuest, &domain.BookingPatch{CheckInDate: &newIn})
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)

	unchanged := f.reload(t, second.ID)
	assert.True(t, unchanged.CheckInDate.Equal(day(20)))
	assert.Equal(t, 200.0, unchanged.TotalPrice)
}

func TestUpdateBooking_PartialFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)

	guests := 4
	confirmed := domain.BookingStatusConfirmed
	updated, err := f.bookings.UpdateBooking(ctx, b.ID, testOwner, &domain.BookingPatch{Guests: &guests, Status: &confirmed})
	require.NoError(t, err)

	assert.Equal(t, 4, updated.Guests)
	assert.Equal(t, domain.BookingStatusConfirmed, updated.Status)
	assert.True(t, updated.CheckInDate.Equal(day(10)))
	assert.Equal(t, 200.0, updated.TotalPrice)
	assert.Equal(t, domain.DefaultPaymentMethod, updated.PaymentMethod)
	assert.Contains(t, f.outboxEvents(t), domain.EventBookingUpdated)
}

func TestUpdateBooking_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	confirmed := f.book(t, 10, 12)
	status := domain.BookingStatusConfirmed
	_, err := f.bookings.UpdateBooking(ctx, confirmed.ID, testGuest, &domain.BookingPatch{Status: &status})
	require.NoError(t, err)

	pending := domain.BookingStatusPending
	_, err = f.bookings.UpdateBooking(ctx, confirmed.ID, testGuest, &domain.BookingPatch{Status: &pending})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	cancelled := f.book(t, 20, 22)
	_, err = f.bookings.CancelBooking(ctx, cancelled.ID, testGuest)
	require.NoError(t, err)

	newOut := day(23)
	_, err = f.bookings.UpdateBooking(ctx, cancelled.ID, testGuest, &domain.BookingPatch{CheckOutDate: &newOut})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.bookings.UpdateBooking(ctx, cancelled.ID, testGuest, &domain.BookingPatch{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBooking_OutsiderForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)

	guests := 3
	_, err := f.bookings.UpdateBooking(ctx, b.ID, testOutside, &domain.BookingPatch{Guests: &guests})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.bookings.CancelBooking(ctx, b.ID, testOutside)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	err = f.bookings.DeleteBooking(ctx, b.ID, testOutside)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.bookings.GetBooking(ctx, b.ID, testOutside)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, domain.BookingStatusPending, f.reload(t, b.ID).Status)
}

func TestCancelBooking_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)

	first, err := f.bookings.CancelBooking(ctx, b.ID, testGuest)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, first.Status)

	second, err := f.bookings.CancelBooking(ctx, b.ID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, second.Status)

	cancelled := 0
	for _, e := range f.outboxEvents(t) {
		if e == domain.EventBookingCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestDeleteBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades pending payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, 10, 12)
		p := f.pay(t, b.ID, string(domain.PaymentMethodCash))

		require.NoError(t, f.bookings.DeleteBooking(ctx, b.ID, testGuest))

		_, err := f.store.Bookings().GetByID(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrBookingNotFound)
		_, err = f.store.Payments().GetByID(ctx, p.ID)
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
		assert.Contains(t, f.outboxEvents(t), domain.EventBookingDeleted)
	})

	t.Run("rejects completed payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, 10, 12)
		f.pay(t, b.ID, string(domain.PaymentMethodCard))

		err := f.bookings.DeleteBooking(ctx, b.ID, testOwner)
		assert.ErrorIs(t, err, domain.ErrBookingHasCompletedPayment)
		f.reload(t, b.ID)
	})

	t.Run("missing booking", func(t *testing.T) {
		f := newFixture(t)
		err := f.bookings.DeleteBooking(ctx, "nope", testGuest)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, 10, 12)
	second := f.book(t, 20, 23)
	_, err := f.bookings.CancelBooking(ctx, second.ID, testGuest)
	require.NoError(t, err)

	got, err := f.bookings.GetBooking(ctx, first.ID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	mine, err := f.bookings.ListUserBookings(ctx, testGuest)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	dashboard, err := f.bookings.HotelBookings(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 2, dashboard.TotalBookings)
	assert.Equal(t, 200.0, dashboard.TotalRevenue)

	_, err = f.bookings.HotelBookings(ctx, testGuest)
	assert.ErrorIs(t, err, domain.ErrHotelNotFound)

	page, err := f.bookings.ListAllBookings(ctx, dto.PaginationQuery{Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}

func TestCreateBooking_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.SetFailure(errors.New("connection refused"))

	_, err := f.bookings.CreateBooking(context.Background(), testGuest, bookingRequest(10, 12))
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, domain.ErrRoomUnavailable)
}
