package booking

import (
	"context"
	"fmt"

	"github.com/iliyamo/tour-booking/internal/model"
)

// Resolver answers "how many spots are left" for a tour date.  The answer
// is always computed from the live sum of committed guests; the inventory
// record only contributes the capacity.
type Resolver struct {
	store           Reader
	defaultCapacity int
}

// NewResolver returns a Resolver using defaultCapacity for dates without a
// capacity of their own.
func NewResolver(store Reader, defaultCapacity int) *Resolver {
	return &Resolver{store: store, defaultCapacity: defaultCapacity}
}

// CheckAvailability resolves the remaining spots of tourID on date and
// whether requestedGuests fit.  This read takes no locks; Ledger.Create
// repeats the decision under a row lock.
func (r *Resolver) CheckAvailability(ctx context.Context, tourID string, date model.Date, requestedGuests int) (model.Availability, error) {
	if tourID == "" {
		return model.Availability{}, validationf("tour_id is required")
	}
	if date.IsZero() {
		return model.Availability{}, validationf("date is required")
	}
	if requestedGuests < 1 {
		return model.Availability{}, validationf("guests must be at least 1")
	}
	tour, err := r.store.Tour(ctx, tourID)
	if err != nil {
		return model.Availability{}, err
	}
	out := model.Availability{TourID: tour.ID, TourDate: date}
	if !tour.IsActive {
		return out, nil
	}
	inv, err := r.store.Inventory(ctx, tourID, date)
	if err != nil {
		return model.Availability{}, fmt.Errorf("load inventory: %w", err)
	}
	committed, err := r.store.CommittedGuests(ctx, tourID, date)
	if err != nil {
		return model.Availability{}, fmt.Errorf("sum committed guests: %w", err)
	}
	out.AvailableSpots = r.spots(inv, committed)
	out.CanAccommodate = out.AvailableSpots >= requestedGuests
	return out, nil
}

// spots applies the capacity precedence: closed date, max_capacity, a
// manually managed available_spots, then the default.
func (r *Resolver) spots(inv *model.InventoryRecord, committed int) int {
	capacity := r.defaultCapacity
	if inv != nil {
		if !inv.IsAvailable {
			return 0
		}
		switch {
		case inv.MaxCapacity != nil:
			capacity = *inv.MaxCapacity
		case inv.AvailableSpots != nil:
			capacity = *inv.AvailableSpots
		}
	}
	return max(0, capacity-committed)
}
