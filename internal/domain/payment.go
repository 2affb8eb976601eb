package domain

import (
	"crypto/rand"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsValid checks if the status is a known PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) String() string {
	return string(s)
}

// paymentTransitions lists the allowed moves; anything missing is terminal
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

// PaymentMethod represents the method of payment
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodOnline       PaymentMethod = "online"
)

// IsValid checks if the method is supported
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodOnline:
		return true
	}
	return false
}

// Currency is an ISO 4217 code accepted for payments
type Currency string

const (
	CurrencyLKR Currency = "LKR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"

	DefaultCurrency = CurrencyLKR
)

// IsValid checks if the currency is supported
func (c Currency) IsValid() bool {
	switch c {
	case CurrencyLKR, CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// Payment is the money record of one booking
type Payment struct {
	ID            string        `json:"id"`
	BookingID     string        `json:"booking_id"`
	UserID        string        `json:"user_id"`
	HotelID       string        `json:"hotel_id"`
	Amount        float64       `json:"amount"`
	Currency      Currency      `json:"currency"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	CardLast4     string        `json:"card_last4,omitempty"`
	CardBrand     string        `json:"card_brand,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	RefundAmount  float64       `json:"refund_amount"`
	RefundReason  string        `json:"refund_reason,omitempty"`
	RefundDate    *time.Time    `json:"refund_date,omitempty"`
	ReceiptNumber string        `json:"receipt_number,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// PaymentDetails are the optional fields of a new payment
type PaymentDetails struct {
	TransactionID string
	CardLast4     string
	CardBrand     string
	Notes         string
}

// NewPayment creates the payment for booking. Cash waits for the hotel to
// confirm; every other method is taken as settled.
func NewPayment(booking *Booking, userID string, amount float64, currency Currency, method PaymentMethod, details PaymentDetails) (*Payment, error) {
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if strings.TrimSpace(userID) == "" {
		return nil, NewValidationError("user_id", "is required")
	}
	if amount == 0 {
		amount = booking.TotalPrice
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, NewValidationError("amount", "must be greater than zero")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currency.IsValid() {
		return nil, NewValidationError("currency", fmt.Sprintf("unsupported currency %q", currency))
	}
	if !method.IsValid() {
		return nil, NewValidationError("payment_method", fmt.Sprintf("unsupported payment method %q", method))
	}
	if details.CardLast4 != "" && len(details.CardLast4) != 4 {
		return nil, NewValidationError("card_last4", "must be exactly 4 characters")
	}

	now := time.Now().UTC()
	p := &Payment{
		ID:            uuid.New().String(),
		BookingID:     booking.ID,
		UserID:        userID,
		HotelID:       booking.HotelID,
		Amount:        amount,
		Currency:      currency,
		Method:        method,
		Status:        PaymentStatusPending,
		TransactionID: details.TransactionID,
		CardLast4:     details.CardLast4,
		CardBrand:     details.CardBrand,
		Notes:         details.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if method != PaymentMethodCash {
		p.complete(now)
	}
	return p, nil
}

// IsActive reports whether the payment blocks a new one for its booking
func (p *Payment) IsActive() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusCompleted
}

// IsPayer reports whether userID made the payment
func (p *Payment) IsPayer(userID string) bool {
	return userID != "" && p.UserID == userID
}

// CanTransitionTo checks the payment status graph. same -> same is allowed.
func (p *Payment) CanTransitionTo(next PaymentStatus) error {
	if !next.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown payment status %q", next))
	}
	if p.Status == next {
		return nil
	}
	for _, allowed := range paymentTransitions[p.Status] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: payment cannot move from %s to %s", ErrInvalidState, p.Status, next)
}

// Confirm completes a pending payment. Confirming a completed payment
// re-affirms its paid_at and receipt instead of failing.
func (p *Payment) Confirm() error {
	switch p.Status {
	case PaymentStatusPending, PaymentStatusCompleted:
		p.complete(time.Now().UTC())
		return nil
	}
	return fmt.Errorf("%w (current status: %s)", ErrConfirmRequiresPending, p.Status)
}

// Refund moves a completed payment to refunded. A nil amount refunds in full.
func (p *Payment) Refund(amount *float64, reason string) error {
	if p.Status != PaymentStatusCompleted {
		return ErrRefundRequiresCompleted
	}

	refund := p.Amount
	if amount != nil {
		refund = *amount
	}
	if refund <= 0 || refund > p.Amount {
		return NewValidationError("refund_amount", fmt.Sprintf("must be greater than zero and at most %.2f", p.Amount))
	}

	now := time.Now().UTC()
	p.Status = PaymentStatusRefunded
	p.RefundAmount = refund
	p.RefundReason = reason
	p.RefundDate = &now
	p.UpdatedAt = now
	return nil
}

// TransitionTo applies a generic status change with the same side fields as
// Confirm and Refund.
func (p *Payment) TransitionTo(next PaymentStatus) error {
	if err := p.CanTransitionTo(next); err != nil {
		return err
	}
	switch next {
	case PaymentStatusCompleted:
		return p.Confirm()
	case PaymentStatusRefunded:
		if p.Status == PaymentStatusRefunded {
			return nil
		}
		return p.Refund(nil, p.RefundReason)
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// CanDelete reports whether the payment may be hard-deleted
func (p *Payment) CanDelete() error {
	if p.Status == PaymentStatusCompleted {
		return ErrDeleteCompletedPayment
	}
	return nil
}

func (p *Payment) complete(now time.Time) {
	p.Status = PaymentStatusCompleted
	if p.PaidAt == nil {
		p.PaidAt = &now
	}
	if p.ReceiptNumber == "" {
		p.ReceiptNumber = GenerateReceiptNumber(now)
	}
	p.UpdatedAt = now
}

const receiptAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateReceiptNumber returns RCP-<unix millis>-<9 base36 chars>
func GenerateReceiptNumber(now time.Time) string {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		copy(buf, uuid.New().String())
	}
	for i, b := range buf {
		buf[i] = receiptAlphabet[int(b)%len(receiptAlphabet)]
	}
	return fmt.Sprintf("RCP-%d-%s", now.UnixMilli(), buf)
}

// PaymentPatch is a partial owner-side update
type PaymentPatch struct {
	Status        *PaymentStatus
	TransactionID *string
	Notes         *string
}

// IsEmpty reports whether no field is present
func (p *PaymentPatch) IsEmpty() bool {
	return p.Status == nil && p.TransactionID == nil && p.Notes == nil
}

// PaymentStats aggregates payments for an owner's hotels
type PaymentStats struct {
	TotalPayments  int     `json:"total_payments"`
	TotalRevenue   float64 `json:"total_revenue"`
	PendingAmount  float64 `json:"pending_amount"`
	CompletedCount int     `json:"completed_count"`
}

// SummarizePayments sums completed revenue and pending exposure
func SummarizePayments(payments []*Payment) PaymentStats {
	stats := PaymentStats{TotalPayments: len(payments)}
	for _, p := range payments {
		switch p.Status {
		case PaymentStatusCompleted:
			stats.TotalRevenue += p.Amount
			stats.CompletedCount++
		case PaymentStatusPending:
			stats.PendingAmount += p.Amount
		}
	}
	stats.TotalRevenue = math.Round(stats.TotalRevenue*100) / 100
	stats.PendingAmount = math.Round(stats.PendingAmount*100) / 100
	return stats
}
