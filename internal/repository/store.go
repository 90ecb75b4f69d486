package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/model"
)

// BookingStore adapts the MySQL repositories to booking.Store.
type BookingStore struct {
	db        *sql.DB
	tours     *TourRepo
	bookings  *BookingRepo
	inventory *InventoryRepo
	events    *PaymentEventRepo
}

// NewBookingStore wires the repositories the booking engine needs.
func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{
		db:        db,
		tours:     NewTourRepo(db),
		bookings:  NewBookingRepo(db),
		inventory: NewInventoryRepo(db),
		events:    NewPaymentEventRepo(db),
	}
}

// engineErr translates repository sentinels into booking engine errors.
func engineErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%s: %w", what, booking.ErrNotFound)
	case errors.Is(err, ErrConflict):
		return fmt.Errorf("%w: %v", booking.ErrValidation, err)
	default:
		return err
	}
}

func (s *BookingStore) Tour(ctx context.Context, id string) (model.Tour, error) {
	t, err := getTour(ctx, s.db, id)
	return t, engineErr(err, "tour "+id)
}

func (s *BookingStore) Booking(ctx context.Context, id string) (model.Booking, error) {
	b, err := getBooking(ctx, s.db, id, false)
	return b, engineErr(err, "booking "+id)
}

func (s *BookingStore) Inventory(ctx context.Context, tourID string, date model.Date) (*model.InventoryRecord, error) {
	return getInventory(ctx, s.db, tourID, date, false)
}

func (s *BookingStore) CommittedGuests(ctx context.Context, tourID string, date model.Date) (int, error) {
	return committedGuests(ctx, s.db, tourID, date)
}

func (s *BookingStore) BookingsByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return s.bookings.ListByUser(ctx, userID)
}

func (s *BookingStore) BookingsByMerchant(ctx context.Context, merchantID string) ([]model.Booking, error) {
	return s.bookings.ListByMerchant(ctx, merchantID)
}

// InTx runs fn inside a READ COMMITTED transaction.  The inventory row lock
// taken by LockInventory serializes writers of one tour date, and the
// committed-guest sum read after it sees every booking committed before
// the lock was granted.
func (s *BookingStore) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&storeTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

type storeTx struct {
	s  *BookingStore
	tx *sql.Tx
}

func (t *storeTx) Tour(ctx context.Context, id string) (model.Tour, error) {
	tour, err := getTour(ctx, t.tx, id)
	return tour, engineErr(err, "tour "+id)
}

func (t *storeTx) Booking(ctx context.Context, id string) (model.Booking, error) {
	b, err := getBooking(ctx, t.tx, id, false)
	return b, engineErr(err, "booking "+id)
}

func (t *storeTx) Inventory(ctx context.Context, tourID string, date model.Date) (*model.InventoryRecord, error) {
	return getInventory(ctx, t.tx, tourID, date, false)
}

func (t *storeTx) CommittedGuests(ctx context.Context, tourID string, date model.Date) (int, error) {
	return committedGuests(ctx, t.tx, tourID, date)
}

func (t *storeTx) LockInventory(ctx context.Context, tourID string, date model.Date, ensureCapacity int) (*model.InventoryRecord, error) {
	return t.s.inventory.LockTx(ctx, t.tx, tourID, date, ensureCapacity)
}

func (t *storeTx) AdjustInventory(ctx context.Context, tourID string, date model.Date, delta int) error {
	return t.s.inventory.AdjustTx(ctx, t.tx, tourID, date, delta)
}

func (t *storeTx) SetInventorySpots(ctx context.Context, tourID string, date model.Date, spots int) error {
	return t.s.inventory.SetSpotsTx(ctx, t.tx, tourID, date, spots)
}

func (t *storeTx) UpsertInventory(ctx context.Context, rec model.InventoryRecord) error {
	return t.s.inventory.UpsertTx(ctx, t.tx, rec)
}

func (t *storeTx) LockBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := t.s.bookings.GetForUpdateTx(ctx, t.tx, id)
	return b, engineErr(err, "booking "+id)
}

func (t *storeTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return engineErr(t.s.bookings.CreateTx(ctx, t.tx, b), "booking "+b.ID)
}

func (t *storeTx) UpdateBooking(ctx context.Context, b model.Booking) error {
	return engineErr(t.s.bookings.UpdateTx(ctx, t.tx, b), "booking "+b.ID)
}

func (t *storeTx) RecordPaymentEvent(ctx context.Context, eventID, kind, bookingID string) (bool, error) {
	return t.s.events.RecordTx(ctx, t.tx, eventID, kind, bookingID)
}

var _ booking.Store = (*BookingStore)(nil)
