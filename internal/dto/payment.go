package dto

import (
	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
)

// CreatePaymentRequest represents a payment for a booking
type CreatePaymentRequest struct {
	BookingID     string  `json:"booking_id" binding:"required"`
	Amount        float64 `json:"amount,omitempty" binding:"min=0"`
	Currency      string  `json:"currency,omitempty" binding:"omitempty,oneof=LKR USD EUR GBP"`
	PaymentMethod string  `json:"payment_method" binding:"required,oneof=cash card bank_transfer online"`
	TransactionID string  `json:"transaction_id,omitempty" binding:"max=128"`
	CardLast4     string  `json:"card_last4,omitempty" binding:"omitempty,len=4,numeric"`
	CardBrand     string  `json:"card_brand,omitempty" binding:"max=32"`
	Notes         string  `json:"notes,omitempty" binding:"max=1000"`
	// CardToken is passed to the payment gateway when one is configured
	CardToken string `json:"card_token,omitempty"`
}

// Details returns the optional payment fields
func (r *CreatePaymentRequest) Details() domain.PaymentDetails {
	return domain.PaymentDetails{
		TransactionID: r.TransactionID,
		CardLast4:     r.CardLast4,
		CardBrand:     r.CardBrand,
		Notes:         r.Notes,
	}
}

// RefundPaymentRequest represents an owner refund. A missing amount refunds
// the full payment.
type RefundPaymentRequest struct {
	RefundAmount *float64 `json:"refund_amount,omitempty"`
	RefundReason string   `json:"refund_reason,omitempty" binding:"max=500"`
}

// UpdatePaymentRequest is a partial owner-side update
type UpdatePaymentRequest struct {
	Status        *string `json:"status,omitempty" binding:"omitempty,oneof=pending completed failed refunded cancelled"`
	TransactionID *string `json:"transaction_id,omitempty" binding:"omitempty,max=128"`
	Notes         *string `json:"notes,omitempty" binding:"omitempty,max=1000"`
}

// ToPatch converts the request into a domain patch
func (r *UpdatePaymentRequest) ToPatch() *domain.PaymentPatch {
	patch := &domain.PaymentPatch{
		TransactionID: r.TransactionID,
		Notes:         r.Notes,
	}
	if r.Status != nil {
		s := domain.PaymentStatus(*r.Status)
		patch.Status = &s
	}
	return patch
}

// HotelPaymentsResponse lists payments for the owner's hotels with totals
type HotelPaymentsResponse struct {
	Payments []*domain.Payment   `json:"payments"`
	Stats    domain.PaymentStats `json:"stats"`
}

// NewHotelPaymentsResponse builds the response from the owner's payments
func NewHotelPaymentsResponse(payments []*domain.Payment) *HotelPaymentsResponse {
	return &HotelPaymentsResponse{
		Payments: payments,
		Stats:    domain.SummarizePayments(payments),
	}
}
