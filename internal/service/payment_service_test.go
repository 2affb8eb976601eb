package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/dto"
	"github.com/prohmpiriya/hotel-booking-engine/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestCreatePayment_CardCompletesBooking(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, 10, 13)

	p := f.pay(t, b.ID, string(domain.PaymentMethodCard))

	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, 300.0, p.Amount)
	assert.Equal(t, domain.CurrencyLKR, p.Currency)
	assert.NotEmpty(t, p.ReceiptNumber)
	assert.NotNil(t, p.PaidAt)
	assert.Equal(t, testHotel, p.HotelID)

	booking := f.reload(t, b.ID)
	assert.True(t, booking.IsPaid)
	assert.Equal(t, "card", booking.PaymentMethod)
	assert.Contains(t, f.outboxEvents(t), domain.EventPaymentCreated)
}

func TestCreatePayment_CashWaitsForOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, 10, 12)
	second := f.book(t, 20, 22)

	p1 := f.pay(t, first.ID, string(domain.PaymentMethodCash))
	p2 := f.pay(t, second.ID, string(domain.PaymentMethodCash))
	assert.Equal(t, domain.PaymentStatusPending, p1.Status)
	assert.Empty(t, p1.ReceiptNumber)
	assert.False(t, f.reload(t, first.ID).IsPaid)

	_, err := f.payments.ConfirmPayment(ctx, p1.ID, testGuest)
	assert.ErrorIs(t, err, domain.ErrNotHotelOwner)

	c1, err := f.payments.ConfirmPayment(ctx, p1.ID, testOwner)
	require.NoError(t, err)
	c2, err := f.payments.ConfirmPayment(ctx, p2.ID, testOwner)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusCompleted, c1.Status)
	assert.NotEmpty(t, c1.ReceiptNumber)
	assert.NotEqual(t, c1.ReceiptNumber, c2.ReceiptNumber)
	assert.True(t, f.reload(t, first.ID).IsPaid)

	// re-confirming keeps the receipt
	again, err := f.payments.ConfirmPayment(ctx, p1.ID, testOwner)
	require.NoError(t, err)
	assert.Equal(t, c1.ReceiptNumber, again.ReceiptNumber)
}

func TestCreatePayment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)

	tests := []struct {
		name    string
		userID  string
		req     *dto.CreatePaymentRequest
		wantErr error
	}{
		{"missing booking id", testGuest, &dto.CreatePaymentRequest{PaymentMethod: "card"}, domain.ErrValidation},
		{"unknown booking", testGuest, &dto.CreatePaymentRequest{BookingID: "nope", PaymentMethod: "card"}, domain.ErrBookingNotFound},
		{"not the guest", testOwner, &dto.CreatePaymentRequest{BookingID: b.ID, PaymentMethod: "card"}, domain.ErrNotBookingOwner},
		{"negative amount", testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, Amount: -5, PaymentMethod: "card"}, domain.ErrValidation},
		{"bad currency", testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, Currency: "XYZ", PaymentMethod: "card"}, domain.ErrValidation},
		{"bad method", testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, PaymentMethod: "barter"}, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.CreatePayment(ctx, tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreatePayment_OneActivePerBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)

	p := f.pay(t, b.ID, string(domain.PaymentMethodCard))

	_, err := f.payments.CreatePayment(ctx, testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, PaymentMethod: "cash"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.payments.RefundPayment(ctx, p.ID, testOwner, nil)
	require.NoError(t, err)

	next := f.pay(t, b.ID, string(domain.PaymentMethodOnline))
	assert.Equal(t, domain.PaymentStatusCompleted, next.Status)
	assert.True(t, f.reload(t, b.ID).IsPaid)

	latest, err := f.payments.GetPaymentByBooking(ctx, b.ID, testGuest)
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.ID)
}

func TestRefundPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("partial refund cancels and unpays booking", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, 10, 13)
		p := f.pay(t, b.ID, string(domain.PaymentMethodCard))

		amount := 120.0
		refunded, err := f.payments.RefundPayment(ctx, p.ID, testOwner, &dto.RefundPaymentRequest{RefundAmount: &amount, RefundReason: "early checkout"})
		require.NoError(t, err)

		assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
		assert.Equal(t, 120.0, refunded.RefundAmount)
		assert.Equal(t, "early checkout", refunded.RefundReason)
		assert.NotNil(t, refunded.RefundDate)

		booking := f.reload(t, b.ID)
		assert.False(t, booking.IsPaid)
		assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
		assert.Contains(t, f.outboxEvents(t), domain.EventPaymentRefunded)
	})

	t.Run("amount above payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, 10, 12)
		p := f.pay(t, b.ID, string(domain.PaymentMethodCard))

		amount := 500.0
		_, err := f.payments.RefundPayment(ctx, p.ID, testOwner, &dto.RefundPaymentRequest{RefundAmount: &amount})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.True(t, f.reload(t, b.ID).IsPaid)
	})

	t.Run("pending payment", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, 10, 12)
		p := f.pay(t, b.ID, string(domain.PaymentMethodCash))

		_, err := f.payments.RefundPayment(ctx, p.ID, testOwner, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("guest cannot refund", func(t *testing.T) {
		f := newFixture(t)
		b := f.book(t, 10, 12)
		p := f.pay(t, b.ID, string(domain.PaymentMethodCard))

		_, err := f.payments.RefundPayment(ctx, p.ID, testGuest, nil)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestUpdatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)
	p := f.pay(t, b.ID, string(domain.PaymentMethodCash))

	notes := "paid at desk"
	completed := domain.PaymentStatusCompleted
	updated, err := f.payments.UpdatePayment(ctx, p.ID, testOwner, &domain.PaymentPatch{Status: &completed, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, updated.Status)
	assert.Equal(t, "paid at desk", updated.Notes)
	assert.NotEmpty(t, updated.ReceiptNumber)
	assert.True(t, f.reload(t, b.ID).IsPaid)

	pending := domain.PaymentStatusPending
	_, err = f.payments.UpdatePayment(ctx, p.ID, testOwner, &domain.PaymentPatch{Status: &pending})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	refunded := domain.PaymentStatusRefunded
	updated, err = f.payments.UpdatePayment(ctx, p.ID, testOwner, &domain.PaymentPatch{Status: &refunded})
	require.NoError(t, err)
	assert.Equal(t, updated.Amount, updated.RefundAmount)

	booking := f.reload(t, b.ID)
	assert.False(t, booking.IsPaid)
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)

	_, err = f.payments.UpdatePayment(ctx, p.ID, testOwner, &domain.PaymentPatch{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeletePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)
	p := f.pay(t, b.ID, string(domain.PaymentMethodCash))

	err := f.payments.DeletePayment(ctx, p.ID, testOutside)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.payments.DeletePayment(ctx, p.ID, testGuest))
	_, err = f.payments.GetPayment(ctx, p.ID, testGuest)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	card := f.pay(t, b.ID, string(domain.PaymentMethodCard))
	err = f.payments.DeletePayment(ctx, card.ID, testOwner)
	assert.ErrorIs(t, err, domain.ErrDeleteCompletedPayment)
}

func TestPayment_OutsiderForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)
	p := f.pay(t, b.ID, string(domain.PaymentMethodCash))

	_, err := f.payments.ConfirmPayment(ctx, p.ID, testOutside)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.payments.GetPayment(ctx, p.ID, testOutside)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.payments.GetPaymentByBooking(ctx, b.ID, testOutside)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReconcileBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)
	f.pay(t, b.ID, string(domain.PaymentMethodCard))

	drifted := f.reload(t, b.ID)
	drifted.IsPaid = false
	require.NoError(t, f.store.Bookings().Update(ctx, drifted))

	changed, err := f.payments.ReconcileBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, f.reload(t, b.ID).IsPaid)

	changed, err = f.payments.ReconcileBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.payments.ReconcileBooking(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestPaymentReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, 10, 12)
	second := f.book(t, 20, 23)
	f.pay(t, first.ID, string(domain.PaymentMethodCard))
	f.pay(t, second.ID, string(domain.PaymentMethodCash))

	mine, err := f.payments.ListUserPayments(ctx, testGuest)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	dashboard, err := f.payments.HotelPayments(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, 2, dashboard.Stats.TotalPayments)
	assert.Equal(t, 200.0, dashboard.Stats.TotalRevenue)
	assert.Equal(t, 300.0, dashboard.Stats.PendingAmount)
	assert.Equal(t, 1, dashboard.Stats.CompletedCount)

	page, err := f.payments.ListAllPayments(ctx, dto.PaginationQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestCreatePayment_Gateway(t *testing.T) {
	ctx := context.Background()

	t.Run("charge stores transaction id", func(t *testing.T) {
		var charged *gateway.ChargeRequest
		gw := &MockGateway{ChargeFunc: func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
			charged = req
			return &gateway.ChargeResponse{Success: true, TransactionID: "pi_123"}, nil
		}}
		f := newFixture(t, withGateway(gw))
		b := f.book(t, 10, 12)

		p, err := f.payments.CreatePayment(ctx, testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, PaymentMethod: "card", CardToken: "pm_card_visa"})
		require.NoError(t, err)
		assert.Equal(t, "pi_123", p.TransactionID)
		require.NotNil(t, charged)
		assert.Equal(t, 200.0, charged.Amount)
		assert.Equal(t, "pm_card_visa", charged.CardToken)
	})

	t.Run("cash skips gateway", func(t *testing.T) {
		gw := &MockGateway{ChargeFunc: func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
			t.Fatal("cash must not be charged")
			return nil, nil
		}}
		f := newFixture(t, withGateway(gw))
		b := f.book(t, 10, 12)
		f.pay(t, b.ID, string(domain.PaymentMethodCash))
	})

	t.Run("declined writes nothing", func(t *testing.T) {
		gw := &MockGateway{ChargeFunc: func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
			return &gateway.ChargeResponse{Success: false, FailureReason: "card_declined"}, nil
		}}
		f := newFixture(t, withGateway(gw))
		b := f.book(t, 10, 12)

		_, err := f.payments.CreatePayment(ctx, testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, PaymentMethod: "card"})
		assert.ErrorIs(t, err, domain.ErrPaymentDeclined)

		_, err = f.store.Payments().GetLatestByBooking(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
		assert.False(t, f.reload(t, b.ID).IsPaid)
	})

	t.Run("gateway error", func(t *testing.T) {
		gw := &MockGateway{ChargeFunc: func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
			return nil, errors.New("timeout")
		}}
		f := newFixture(t, withGateway(gw))
		b := f.book(t, 10, 12)

		_, err := f.payments.CreatePayment(ctx, testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, PaymentMethod: "online"})
		assert.ErrorIs(t, err, domain.ErrPaymentGateway)
	})

	t.Run("charge reversed when storing fails", func(t *testing.T) {
		var f *fixture
		var reversed string
		gw := &MockGateway{
			ChargeFunc: func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
				f.store.SetFailure(errors.New("disk full"))
				return &gateway.ChargeResponse{Success: true, TransactionID: "pi_789"}, nil
			},
			RefundFunc: func(ctx context.Context, transactionID string, amount float64) error {
				reversed = transactionID
				return nil
			},
		}
		f = newFixture(t, withGateway(gw))
		b := f.book(t, 10, 12)

		_, err := f.payments.CreatePayment(ctx, testGuest, &dto.CreatePaymentRequest{BookingID: b.ID, PaymentMethod: "card"})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.Equal(t, "pi_789", reversed)
	})

	t.Run("works with the mock gateway", func(t *testing.T) {
		f := newFixture(t, withGateway(gateway.NewMockGateway(nil)))
		b := f.book(t, 10, 12)

		p := f.pay(t, b.ID, string(domain.PaymentMethodCard))
		assert.Contains(t, p.TransactionID, "mock_txn_")

		_, err := f.payments.RefundPayment(ctx, p.ID, testOwner, nil)
		require.NoError(t, err)
	})
}

func TestRefundPayment_GatewayFailureAborts(t *testing.T) {
	ctx := context.Background()
	var refundedAmount float64
	gw := &MockGateway{RefundFunc: func(ctx context.Context, transactionID string, amount float64) error {
		refundedAmount = amount
		return errors.New("provider unavailable")
	}}
	f := newFixture(t, withGateway(gw))
	b := f.book(t, 10, 12)
	p := f.pay(t, b.ID, string(domain.PaymentMethodCard))

	_, err := f.payments.RefundPayment(ctx, p.ID, testOwner, nil)
	assert.ErrorIs(t, err, domain.ErrPaymentGateway)
	assert.Equal(t, 200.0, refundedAmount)

	stored, err := f.store.Payments().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)

	booking := f.reload(t, b.ID)
	assert.True(t, booking.IsPaid)
	assert.Equal(t, domain.BookingStatusPending, booking.Status)
}

func TestCreatePayment_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		active    int
		others    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			method := domain.PaymentMethodCard
			if i%2 == 0 {
				method = domain.PaymentMethodCash
			}
			_, err := f.payments.CreatePayment(ctx, testGuest, &dto.CreatePaymentRequest{
				BookingID:     b.ID,
				PaymentMethod: string(method),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrPaymentAlreadyActive):
				active++
			default:
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, active)
	assert.Empty(t, others)

	payments, err := f.payments.ListUserPayments(ctx, testGuest)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestConfirmPayment_CancelledBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, 10, 12)
	p := f.pay(t, b.ID, string(domain.PaymentMethodCash))

	_, err := f.bookings.CancelBooking(ctx, b.ID, testGuest)
	require.NoError(t, err)

	_, err = f.payments.ConfirmPayment(ctx, p.ID, testOwner)
	assert.ErrorIs(t, err, domain.ErrBookingCancelled)

	completed := domain.PaymentStatusCompleted
	_, err = f.payments.UpdatePayment(ctx, p.ID, testOwner, &domain.PaymentPatch{Status: &completed})
	assert.ErrorIs(t, err, domain.ErrBookingCancelled)

	assert.False(t, f.reload(t, b.ID).IsPaid)
	stored, err := f.store.Payments().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.Status)

	// the owner can still void it
	cancelled := domain.PaymentStatusCancelled
	voided, err := f.payments.UpdatePayment(ctx, p.ID, testOwner, &domain.PaymentPatch{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, voided.Status)
}

func TestPaymentEvents_CarryTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	provider := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	f := newFixture(t)
	b := f.book(t, 10, 12)

	ctx, span := provider.Tracer("test").Start(context.Background(), "POST /payments")
	defer span.End()

	_, err := f.payments.CreatePayment(ctx, testGuest, &dto.CreatePaymentRequest{
		BookingID:     b.ID,
		PaymentMethod: string(domain.PaymentMethodCard),
	})
	require.NoError(t, err)

	msgs, err := f.store.Outbox().GetPendingMessages(context.Background(), 100)
	require.NoError(t, err)

	var found bool
	for _, m := range msgs {
		if m.EventType != domain.EventPaymentCreated {
			continue
		}
		found = true
		assert.Contains(t, m.Headers()["traceparent"], span.SpanContext().TraceID().String())
	}
	assert.True(t, found)
}
