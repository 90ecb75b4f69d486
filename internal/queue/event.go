// Package queue carries booking events over RabbitMQ: message payloads, a
// long-lived publisher and a reconnecting consumer.
package queue

import (
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
)

// Routing keys on the events exchange.
const (
	KeyBookingCreated   = "booking.created"
	KeyBookingConfirmed = "booking.confirmed"
	KeyBookingCancelled = "booking.cancelled"
	KeyPaymentCompleted = "payment.completed"
)

// AllKeys lists every routing key the notification worker binds.
var AllKeys = []string{KeyBookingCreated, KeyBookingConfirmed, KeyBookingCancelled, KeyPaymentCompleted}

// BookingEvent is published on every ledger transition.  It carries enough
// for downstream consumers to notify the customer without querying the
// primary database.
type BookingEvent struct {
	EventID         string              `json:"event_id"`
	Type            string              `json:"type"`
	BookingID       string              `json:"booking_id"`
	UserID          *string             `json:"user_id,omitempty"`
	MerchantID      string              `json:"merchant_id"`
	TourID          string              `json:"tour_id"`
	TourTitle       string              `json:"tour_title"`
	TourDate        model.Date          `json:"tour_date"`
	NumberOfGuests  int                 `json:"number_of_guests"`
	FinalPriceCents int64               `json:"final_price_cents"`
	Status          model.BookingStatus `json:"status"`
	PaymentStatus   model.PaymentStatus `json:"payment_status"`
	ContactName     string              `json:"contact_name"`
	ContactEmail    string              `json:"contact_email"`
	RefundCents     int64               `json:"refund_cents,omitempty"`
	OccurredAt      time.Time           `json:"occurred_at"`
}
