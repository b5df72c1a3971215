// model/booking.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCompleted      BookingStatus = "COMPLETED"
	BookingCancelled      BookingStatus = "CANCELLED"
)

// Booking is a read-only reference produced by the booking collaborator.
// This subsystem never transitions booking state; it only moves money
// against a booking id.
type Booking struct {
	ID          int64           `json:"id"`
	ListingID   int64           `json:"listing_id"`
	GuestID     int64           `json:"guest_id"`
	HostID      int64           `json:"host_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Status      BookingStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
