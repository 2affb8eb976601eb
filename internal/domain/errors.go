package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service layer wraps exactly one
// of these; callers classify with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrRoomUnavailable    = errors.New("room is not available for the selected dates")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrPaymentGateway     = errors.New("payment gateway error")
)

// Entity errors
var (
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)
	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrHotelNotFound   = fmt.Errorf("hotel %w", ErrNotFound)

	ErrNotBookingParty = fmt.Errorf("%w: not the booking's guest or hotel owner", ErrForbidden)
	ErrNotPaymentParty = fmt.Errorf("%w: not the payment's payer or hotel owner", ErrForbidden)
	ErrNotHotelOwner   = fmt.Errorf("%w: only the hotel owner can perform this action", ErrForbidden)
	ErrNotBookingOwner = fmt.Errorf("%w: booking belongs to another user", ErrForbidden)
	ErrAdminOnly       = fmt.Errorf("%w: admin role required", ErrForbidden)

	ErrPaymentAlreadyActive = fmt.Errorf("%w: booking already has a pending or completed payment", ErrConflict)
	ErrDuplicateReceipt     = fmt.Errorf("%w: receipt number already issued", ErrConflict)

	ErrBookingCancelled           = fmt.Errorf("%w: booking is cancelled", ErrInvalidState)
	ErrRefundRequiresCompleted    = fmt.Errorf("%w: can only refund completed payments", ErrInvalidState)
	ErrConfirmRequiresPending     = fmt.Errorf("%w: only pending payments can be confirmed", ErrInvalidState)
	ErrDeleteCompletedPayment     = fmt.Errorf("%w: completed payments must be refunded before deletion", ErrInvalidState)
	ErrBookingHasCompletedPayment = fmt.Errorf("%w: booking has a completed payment, refund it first", ErrInvalidState)
)

// ValidationError reports a bad input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StorageError wraps a persistence failure so it classifies as
// ErrStorageUnavailable while keeping the driver error in the chain.
func StorageError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
}

// IsNotFound reports whether err is any not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorageError reports whether err came from the persistence layer
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
