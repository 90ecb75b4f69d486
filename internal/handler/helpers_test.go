package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/payment"
	"github.com/iliyamo/tour-booking/internal/repository"
)

func newCtx(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// as authenticates c the way the JWT middleware would.
func as(c echo.Context, userID, role string) {
	c.Set(middleware.CtxUserID, userID)
	c.Set(middleware.CtxRole, role)
	c.Set(middleware.CtxEmail, userID+"@example.com")
}

func params(c echo.Context, kv ...string) {
	var names, values []string
	for i := 0; i+1 < len(kv); i += 2 {
		names = append(names, kv[i])
		values = append(values, kv[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func mustDate(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeLedger struct {
	bookings map[string]model.Booking
	err      error

	created   booking.CreateInput
	change    booking.StatusChange
	changedID string
	seedActor booking.Actor
	seedIn    booking.InventoryInput
	listedFor string
}

func (f *fakeLedger) Create(_ context.Context, in booking.CreateInput) (model.Booking, error) {
	f.created = in
	if f.err != nil {
		return model.Booking{}, f.err
	}
	b := model.Booking{ID: "b-new", TourID: in.TourID, TourDate: in.TourDate, NumberOfGuests: in.NumberOfGuests,
		ContactEmail: in.ContactEmail, Status: model.StatusPending, PaymentStatus: model.PaymentPending}
	if in.UserID != "" {
		uid := in.UserID
		b.UserID = &uid
	}
	return b, nil
}

func (f *fakeLedger) Get(_ context.Context, id string, actor booking.Actor) (model.Booking, error) {
	if f.err != nil {
		return model.Booking{}, f.err
	}
	b, ok := f.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", booking.ErrNotFound, id)
	}
	if (actor.Kind == booking.ActorCustomer || actor.Kind == booking.ActorGuest) && !actor.Owns(b) {
		return model.Booking{}, booking.ErrForbidden
	}
	return b, nil
}

func (f *fakeLedger) UpdateStatus(_ context.Context, id string, ch booking.StatusChange) (model.Booking, error) {
	f.changedID, f.change = id, ch
	if f.err != nil {
		return model.Booking{}, f.err
	}
	b := f.bookings[id]
	b.Status = ch.Status
	return b, nil
}

func (f *fakeLedger) ListForUser(_ context.Context, userID string) ([]model.Booking, error) {
	f.listedFor = userID
	return []model.Booking{{ID: "b1"}}, f.err
}

func (f *fakeLedger) ListForMerchant(_ context.Context, merchantID string) ([]model.Booking, error) {
	f.listedFor = merchantID
	return []model.Booking{{ID: "b1"}, {ID: "b2"}}, f.err
}

func (f *fakeLedger) SeedInventory(_ context.Context, actor booking.Actor, in booking.InventoryInput) (model.InventoryRecord, error) {
	f.seedActor, f.seedIn = actor, in
	if f.err != nil {
		return model.InventoryRecord{}, f.err
	}
	return model.InventoryRecord{TourID: in.TourID, TourDate: in.TourDate, MaxCapacity: in.MaxCapacity,
		AvailableSpots: in.MaxCapacity, IsAvailable: in.IsAvailable}, nil
}

func (f *fakeLedger) ReconcileInventory(_ context.Context, tourID string, _ model.Date) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if tourID == "manual" {
		return -1, nil
	}
	return 7, nil
}

type fakeTours struct {
	tours   map[string]model.Tour
	created *model.Tour
}

func (f *fakeTours) GetByID(_ context.Context, id string) (model.Tour, error) {
	t, ok := f.tours[id]
	if !ok {
		return model.Tour{}, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTours) ListActive(_ context.Context, limit, offset int) ([]model.Tour, error) {
	var out []model.Tour
	for _, t := range f.tours {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTours) Create(_ context.Context, t *model.Tour) error {
	t.ID = "t-new"
	f.created = t
	return nil
}

type fakeCheckout struct {
	calls int
	title string
	err   error
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, b model.Booking, title string) (payment.Checkout, error) {
	f.calls++
	f.title = title
	if f.err != nil {
		return payment.Checkout{}, f.err
	}
	return payment.Checkout{SessionID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}
