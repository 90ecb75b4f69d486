package booking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iliyamo/tour-booking/internal/model"
)

// Counter keeps the persisted available_spots of counter-managed inventory
// rows (those with max_capacity set) in step with bookings.  The counter is
// a cached view: admission decisions never read it, so Decrement and
// Restore only log their failures.
type Counter struct {
	log *slog.Logger
}

// NewCounter returns a Counter that reports failures on log.
func NewCounter(log *slog.Logger) *Counter {
	if log == nil {
		log = slog.Default()
	}
	return &Counter{log: log}
}

// Decrement takes guests off the counter, flooring at zero.
func (c *Counter) Decrement(ctx context.Context, tx Tx, tourID string, date model.Date, guests int) {
	if err := tx.AdjustInventory(ctx, tourID, date, -guests); err != nil {
		c.log.WarnContext(ctx, "inventory decrement failed",
			slog.String("tour_id", tourID), slog.String("tour_date", date.String()),
			slog.Int("guests", guests), slog.Any("err", err))
	}
}

// Restore gives guests back to the counter, capped at max_capacity.
func (c *Counter) Restore(ctx context.Context, tx Tx, tourID string, date model.Date, guests int) {
	if err := tx.AdjustInventory(ctx, tourID, date, guests); err != nil {
		c.log.WarnContext(ctx, "inventory restore failed",
			slog.String("tour_id", tourID), slog.String("tour_date", date.String()),
			slog.Int("guests", guests), slog.Any("err", err))
	}
}

// Reconcile recomputes available_spots of a counter-managed row from the
// committed guest sum.  It returns the resulting spots, or -1 when the date
// has no counter-managed row.
func (c *Counter) Reconcile(ctx context.Context, tx Tx, tourID string, date model.Date) (int, error) {
	inv, err := tx.LockInventory(ctx, tourID, date, 0)
	if err != nil {
		return 0, fmt.Errorf("lock inventory: %w", err)
	}
	if inv == nil || inv.MaxCapacity == nil {
		return -1, nil
	}
	committed, err := tx.CommittedGuests(ctx, tourID, date)
	if err != nil {
		return 0, fmt.Errorf("sum committed guests: %w", err)
	}
	spots := max(0, *inv.MaxCapacity-committed)
	if err := tx.SetInventorySpots(ctx, tourID, date, spots); err != nil {
		return 0, fmt.Errorf("set inventory spots: %w", err)
	}
	return spots, nil
}

// InventoryInput is a merchant's capacity setting for one tour date.
type InventoryInput struct {
	TourID         string
	TourDate       model.Date
	MaxCapacity    *int
	AvailableSpots *int
	IsAvailable    bool
}

// SeedInventory writes the capacity row of a tour date on behalf of the
// tour's merchant (or an admin) and reconciles the counter against the
// bookings already taken.
func (l *Ledger) SeedInventory(ctx context.Context, actor Actor, in InventoryInput) (model.InventoryRecord, error) {
	if in.TourID == "" || in.TourDate.IsZero() {
		return model.InventoryRecord{}, validationf("tour_id and tour_date are required")
	}
	if in.MaxCapacity != nil && *in.MaxCapacity < 0 {
		return model.InventoryRecord{}, validationf("max_capacity must not be negative")
	}
	if in.AvailableSpots != nil && *in.AvailableSpots < 0 {
		return model.InventoryRecord{}, validationf("available_spots must not be negative")
	}
	var out model.InventoryRecord
	err := l.store.InTx(ctx, func(tx Tx) error {
		tour, err := tx.Tour(ctx, in.TourID)
		if err != nil {
			return err
		}
		switch actor.Kind {
		case ActorAdmin, ActorSystem:
		case ActorMerchant:
			if tour.MerchantID != actor.ID {
				return fmt.Errorf("%w: tour belongs to another merchant", ErrForbidden)
			}
		default:
			return fmt.Errorf("%w: only merchants manage inventory", ErrForbidden)
		}
		rec := model.InventoryRecord{
			TourID:         in.TourID,
			TourDate:       in.TourDate,
			MaxCapacity:    in.MaxCapacity,
			AvailableSpots: in.AvailableSpots,
			IsAvailable:    in.IsAvailable,
		}
		if err := tx.UpsertInventory(ctx, rec); err != nil {
			return fmt.Errorf("upsert inventory: %w", err)
		}
		if _, err := l.counter.Reconcile(ctx, tx, in.TourID, in.TourDate); err != nil {
			return err
		}
		inv, err := tx.Inventory(ctx, in.TourID, in.TourDate)
		if err != nil {
			return fmt.Errorf("reload inventory: %w", err)
		}
		if inv != nil {
			out = *inv
		}
		return nil
	})
	return out, err
}

// ReconcileInventory recomputes the counter of one tour date in its own
// transaction.  See Counter.Reconcile for the result.
func (l *Ledger) ReconcileInventory(ctx context.Context, tourID string, date model.Date) (int, error) {
	var spots int
	err := l.store.InTx(ctx, func(tx Tx) error {
		var err error
		spots, err = l.counter.Reconcile(ctx, tx, tourID, date)
		return err
	})
	return spots, err
}
