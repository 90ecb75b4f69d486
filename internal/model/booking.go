package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is one of the four known states.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CommitsCapacity reports whether a booking in state s counts against the
// capacity of its tour date.
func (s BookingStatus) CommitsCapacity() bool {
	return s == StatusPending || s == StatusConfirmed
}

// transitions lists every allowed from -> to edge.  Nothing leaves
// cancelled and nothing re-enters pending.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the booking state
// machine.  A same-state pair is not an edge.
func CanTransition(from, to BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment axis of a booking, independent of Status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Booking is a reservation of a tour on a date for a party of guests.
// UserID is nil for guest checkouts; the contact fields then carry identity.
type Booking struct {
	ID                 string        `json:"id"`
	TourID             string        `json:"tour_id"`
	MerchantID         string        `json:"merchant_id"`
	UserID             *string       `json:"user_id,omitempty"`
	TourDate           Date          `json:"tour_date"`
	NumberOfGuests     int           `json:"number_of_guests"`
	UnitPriceCents     int64         `json:"unit_price_cents"`
	TotalPriceCents    int64         `json:"total_price_cents"`
	DiscountCents      int64         `json:"discount_cents"`
	FinalPriceCents    int64         `json:"final_price_cents"`
	Status             BookingStatus `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	PaymentRef         *string       `json:"payment_ref,omitempty"`
	ContactName        string        `json:"contact_name"`
	ContactEmail       string        `json:"contact_email"`
	ContactPhone       string        `json:"contact_phone,omitempty"`
	SpecialRequests    string        `json:"special_requests,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// OwnedBy reports whether the booking belongs to the given user id.
func (b Booking) OwnedBy(userID string) bool {
	return b.UserID != nil && *b.UserID != "" && *b.UserID == userID
}
