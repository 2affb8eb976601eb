package domain

import "time"

// OverlapPolicy decides when two stays collide
type OverlapPolicy int

const (
	// OverlapInclusive treats touching ranges as overlapping, so checking
	// out and checking in on the same day conflicts.
	OverlapInclusive OverlapPolicy = iota
	// OverlapHalfOpen treats stays as [checkIn, checkOut) and allows
	// same-day turnover.
	OverlapHalfOpen
)

// NewOverlapPolicy maps the back-to-back setting to a policy
func NewOverlapPolicy(allowBackToBack bool) OverlapPolicy {
	if allowBackToBack {
		return OverlapHalfOpen
	}
	return OverlapInclusive
}

func (p OverlapPolicy) String() string {
	if p == OverlapHalfOpen {
		return "half-open"
	}
	return "inclusive"
}

// Stay is the occupied interval of one active booking
type Stay struct {
	BookingID string    `json:"booking_id"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
}

// Overlaps applies the policy to an existing stay and a requested range
func (p OverlapPolicy) Overlaps(existing Stay, checkIn, checkOut time.Time) bool {
	if p == OverlapHalfOpen {
		return existing.CheckIn.Before(checkOut) && existing.CheckOut.After(checkIn)
	}
	return !existing.CheckIn.After(checkOut) && !existing.CheckOut.Before(checkIn)
}

// Available reports whether [checkIn, checkOut] is free among stays,
// ignoring the stay of excludeBookingID.
func (p OverlapPolicy) Available(stays []Stay, checkIn, checkOut time.Time, excludeBookingID string) bool {
	for _, s := range stays {
		if excludeBookingID != "" && s.BookingID == excludeBookingID {
			continue
		}
		if p.Overlaps(s, checkIn, checkOut) {
			return false
		}
	}
	return true
}
