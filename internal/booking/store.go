package booking

import (
	"context"

	"github.com/iliyamo/tour-booking/internal/model"
)

// Reader is the read side of the data store.  Lookups of missing rows
// return an error wrapping ErrNotFound, except Inventory which returns
// (nil, nil) because the record is optional.
type Reader interface {
	Tour(ctx context.Context, id string) (model.Tour, error)
	Booking(ctx context.Context, id string) (model.Booking, error)
	Inventory(ctx context.Context, tourID string, date model.Date) (*model.InventoryRecord, error)
	// CommittedGuests sums number_of_guests over pending and confirmed
	// bookings of the tour on date.
	CommittedGuests(ctx context.Context, tourID string, date model.Date) (int, error)
}

// Tx is a unit of work.  Every write of the engine goes through a Tx so that
// the capacity check and the insert it guards commit together.
type Tx interface {
	Reader

	// LockInventory takes an exclusive lock on the inventory row of
	// (tourID, date) and returns it.  When ensureCapacity > 0 a missing row
	// is first created with max_capacity = available_spots =
	// ensureCapacity; otherwise a missing row yields (nil, nil).
	LockInventory(ctx context.Context, tourID string, date model.Date, ensureCapacity int) (*model.InventoryRecord, error)
	// AdjustInventory adds delta to available_spots of a counter-managed
	// row (max_capacity set), clamped to [0, max_capacity].  Missing or
	// merchant-managed rows are left alone.
	AdjustInventory(ctx context.Context, tourID string, date model.Date, delta int) error
	// SetInventorySpots overwrites available_spots of a counter-managed row.
	SetInventorySpots(ctx context.Context, tourID string, date model.Date, spots int) error
	UpsertInventory(ctx context.Context, rec model.InventoryRecord) error

	LockBooking(ctx context.Context, id string) (model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBooking(ctx context.Context, b model.Booking) error

	// RecordPaymentEvent stores a provider event id and reports whether it
	// was seen for the first time.
	RecordPaymentEvent(ctx context.Context, eventID, kind, bookingID string) (bool, error)
}

// Store is the booking engine's view of the relational store.
type Store interface {
	Reader
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	BookingsByUser(ctx context.Context, userID string) ([]model.Booking, error)
	BookingsByMerchant(ctx context.Context, merchantID string) ([]model.Booking, error)
}

// Notifier receives ledger transitions.  Implementations swallow their own
// failures: the ledger never waits on delivery.
type Notifier interface {
	NotifyCreated(ctx context.Context, b model.Booking, tourTitle string)
	NotifyConfirmed(ctx context.Context, b model.Booking, tourTitle string)
	NotifyCancelled(ctx context.Context, b model.Booking, tourTitle string, refundCents int64)
	NotifyPaymentCompleted(ctx context.Context, b model.Booking, tourTitle string)
}

// PaymentGateway is the payment provider as seen by the ledger.
type PaymentGateway interface {
	// VerifyCaptured reports whether paymentRef was captured for at least
	// amountCents.
	VerifyCaptured(ctx context.Context, paymentRef string, amountCents int64) (bool, error)
	Refund(ctx context.Context, paymentRef string, amountCents int64) error
}

type nopNotifier struct{}

func (nopNotifier) NotifyCreated(context.Context, model.Booking, string)          {}
func (nopNotifier) NotifyConfirmed(context.Context, model.Booking, string)        {}
func (nopNotifier) NotifyCancelled(context.Context, model.Booking, string, int64) {}
func (nopNotifier) NotifyPaymentCompleted(context.Context, model.Booking, string) {}
