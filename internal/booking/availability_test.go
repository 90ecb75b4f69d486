package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/tour-booking/internal/model"
)

func TestResolverSpotsPrecedence(t *testing.T) {
	r := NewResolver(nil, 50)
	tests := []struct {
		name      string
		inv       *model.InventoryRecord
		committed int
		want      int
	}{
		{"no record uses default", nil, 8, 42},
		{"closed date", &model.InventoryRecord{MaxCapacity: intp(10), IsAvailable: false}, 0, 0},
		{"max capacity", &model.InventoryRecord{MaxCapacity: intp(10), AvailableSpots: intp(99), IsAvailable: true}, 4, 6},
		{"manual available spots", &model.InventoryRecord{AvailableSpots: intp(12), IsAvailable: true}, 5, 7},
		{"record with neither falls back to default", &model.InventoryRecord{IsAvailable: true}, 10, 40},
		{"never negative", &model.InventoryRecord{MaxCapacity: intp(3), IsAvailable: true}, 9, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.spots(tt.inv, tt.committed); got != tt.want {
				t.Fatalf("spots = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCheckAvailability(t *testing.T) {
	inactive := walkTour()
	inactive.ID, inactive.IsActive = "tour-off", false
	store := newMemStore(walkTour(), inactive)
	store.setInventory(model.InventoryRecord{TourID: "tour-1", TourDate: farDate, MaxCapacity: intp(10), IsAvailable: true})
	l, _ := newTestLedger(t, store, Options{DefaultCapacity: 20})
	ctx := context.Background()

	if _, err := l.Create(ctx, createInput(8, 40000)); err != nil {
		t.Fatal(err)
	}

	got, err := l.Resolver().CheckAvailability(ctx, "tour-1", farDate, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.AvailableSpots != 2 || got.CanAccommodate {
		t.Fatalf("availability = %+v", got)
	}
	got, _ = l.Resolver().CheckAvailability(ctx, "tour-1", farDate, 2)
	if !got.CanAccommodate {
		t.Fatalf("2 guests should fit: %+v", got)
	}

	other, err := l.Resolver().CheckAvailability(ctx, "tour-1", nearDate, 1)
	if err != nil || other.AvailableSpots != 20 {
		t.Fatalf("default capacity: %+v %v", other, err)
	}

	off, err := l.Resolver().CheckAvailability(ctx, "tour-off", farDate, 1)
	if err != nil || off.AvailableSpots != 0 || off.CanAccommodate {
		t.Fatalf("inactive tour: %+v %v", off, err)
	}

	if _, err := l.Resolver().CheckAvailability(ctx, "nope", farDate, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown tour: %v", err)
	}
	if _, err := l.Resolver().CheckAvailability(ctx, "tour-1", farDate, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero guests: %v", err)
	}
	if _, err := l.Resolver().CheckAvailability(ctx, "tour-1", model.Date{}, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero date: %v", err)
	}
}

func TestSeedInventoryReconciles(t *testing.T) {
	store := newMemStore(walkTour())
	l, _ := newTestLedger(t, store, Options{})
	ctx := context.Background()

	if _, err := l.Create(ctx, createInput(4, 20000)); err != nil {
		t.Fatal(err)
	}
	rec, err := l.SeedInventory(ctx, Actor{Kind: ActorMerchant, ID: "merchant-1"}, InventoryInput{
		TourID: "tour-1", TourDate: farDate, MaxCapacity: intp(10), IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("SeedInventory: %v", err)
	}
	if rec.AvailableSpots == nil || *rec.AvailableSpots != 6 {
		t.Fatalf("available = %v, want 6", rec.AvailableSpots)
	}

	_, err = l.SeedInventory(ctx, Actor{Kind: ActorMerchant, ID: "merchant-2"}, InventoryInput{
		TourID: "tour-1", TourDate: farDate, MaxCapacity: intp(99), IsAvailable: true,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign merchant: %v", err)
	}
	_, err = l.SeedInventory(ctx, Actor{Kind: ActorCustomer, ID: "user-1"}, InventoryInput{
		TourID: "tour-1", TourDate: farDate, MaxCapacity: intp(99), IsAvailable: true,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("customer: %v", err)
	}
	_, err = l.SeedInventory(ctx, Actor{Kind: ActorAdmin}, InventoryInput{
		TourID: "tour-1", TourDate: farDate, MaxCapacity: intp(-1),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("negative capacity: %v", err)
	}
	if s := store.spots("tour-1", farDate); *s != 6 {
		t.Fatalf("rejected writes changed the counter: %d", *s)
	}
}

func TestManualInventoryIsNotCounted(t *testing.T) {
	store := newMemStore(walkTour())
	store.setInventory(model.InventoryRecord{TourID: "tour-1", TourDate: farDate, AvailableSpots: intp(5), IsAvailable: true})
	l, _ := newTestLedger(t, store, Options{})
	ctx := context.Background()

	if _, err := l.Create(ctx, createInput(3, 15000)); err != nil {
		t.Fatal(err)
	}
	if s := store.spots("tour-1", farDate); *s != 5 {
		t.Fatalf("merchant-managed spots changed to %d", *s)
	}
	if _, err := l.Create(ctx, createInput(3, 15000)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("second create: %v", err)
	}
}

func TestReconcileInventoryRepairsDrift(t *testing.T) {
	store := newMemStore(walkTour())
	store.adjustErr = errors.New("lost update")
	l, _ := newTestLedger(t, store, Options{})
	ctx := context.Background()

	if _, err := l.Create(ctx, createInput(5, 25000)); err != nil {
		t.Fatal(err)
	}
	if s := store.spots("tour-1", farDate); *s != 50 {
		t.Fatalf("counter = %d, want stale 50", *s)
	}
	spots, err := l.ReconcileInventory(ctx, "tour-1", farDate)
	if err != nil || spots != 45 {
		t.Fatalf("ReconcileInventory = %d, %v", spots, err)
	}
	if s := store.spots("tour-1", farDate); *s != 45 {
		t.Fatalf("counter = %d, want 45", *s)
	}
	if spots, _ := l.ReconcileInventory(ctx, "tour-1", nearDate); spots != -1 {
		t.Fatalf("date without row = %d, want -1", spots)
	}
}
