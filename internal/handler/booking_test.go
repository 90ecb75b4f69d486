package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/utils"
)

const createBody = `{"tour_id":"t1","tour_date":"2026-11-01","number_of_guests":3,"final_price_cents":15000,"contact_name":"Ana","contact_email":"ana@example.com"}`

func TestCreateBookingAsGuest(t *testing.T) {
	led := &fakeLedger{}
	h := NewBookingHandler(led, &fakeTours{}, nil, "", nil)
	c, rec := newCtx(http.MethodPost, "/v1/bookings", createBody)
	if err := h.Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	in := led.created
	if in.UserID != "" || in.ContactEmail != "ana@example.com" || in.NumberOfGuests != 3 ||
		in.FinalPriceCents == nil || *in.FinalPriceCents != 15000 || !in.TourDate.Equal(mustDate("2026-11-01")) {
		t.Fatalf("input = %+v", in)
	}
}

func TestCreateBookingUsesTokenIdentity(t *testing.T) {
	led := &fakeLedger{}
	h := NewBookingHandler(led, &fakeTours{}, nil, "", nil)
	c, rec := newCtx(http.MethodPost, "/v1/bookings",
		`{"tour_id":"t1","tour_date":"2026-11-01","number_of_guests":1,"final_price_cents":5000}`)
	as(c, "u1", model.RoleCustomer)
	if err := h.Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated || led.created.UserID != "u1" || led.created.ContactEmail != "u1@example.com" {
		t.Fatalf("status=%d input=%+v", rec.Code, led.created)
	}
}

func TestCreateBookingRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"bad date":      `{"tour_id":"t1","tour_date":"01/11/2026","number_of_guests":1,"final_price_cents":1}`,
		"missing tour":  `{"tour_date":"2026-11-01","number_of_guests":1,"final_price_cents":1}`,
		"invalid email": `{"tour_id":"t1","tour_date":"2026-11-01","number_of_guests":1,"final_price_cents":1,"contact_email":"nope"}`,
		"not json":      `{`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			led := &fakeLedger{}
			c, rec := newCtx(http.MethodPost, "/v1/bookings", body)
			if err := NewBookingHandler(led, &fakeTours{}, nil, "", nil).Create(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
			}
			if led.created.TourID != "" {
				t.Fatal("ledger reached with invalid input")
			}
		})
	}
}

func TestCreateBookingCapacityExceeded(t *testing.T) {
	led := &fakeLedger{err: &booking.CapacityError{AvailableSpots: 2, Requested: 3}}
	c, rec := newCtx(http.MethodPost, "/v1/bookings", createBody)
	if err := NewBookingHandler(led, &fakeTours{}, nil, "", nil).Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode(t, rec)["available_spots"]; got != float64(2) {
		t.Fatalf("available_spots = %v", got)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: guests", booking.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: tour", booking.ErrNotFound), http.StatusNotFound},
		{repository.ErrNotFound, http.StatusNotFound},
		{booking.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: cancelled -> confirmed", booking.ErrInvalidTransition), http.StatusConflict},
		{booking.ErrCancellationWindow, http.StatusConflict},
		{&booking.CapacityError{AvailableSpots: 0, Requested: 1}, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		c, rec := newCtx(http.MethodGet, "/", "")
		if err := writeError(c, nil, tt.err); err != nil {
			t.Fatal(err)
		}
		if rec.Code != tt.want {
			t.Errorf("%v -> %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func customerBooking(id, owner string, status model.BookingStatus, pay model.PaymentStatus) model.Booking {
	return model.Booking{ID: id, TourID: "t1", MerchantID: "m1", UserID: &owner, Status: status, PaymentStatus: pay}
}

func TestGetBooking(t *testing.T) {
	led := &fakeLedger{bookings: map[string]model.Booking{"b1": customerBooking("b1", "u1", model.StatusPending, model.PaymentPending)}}
	h := NewBookingHandler(led, &fakeTours{}, nil, "", nil)

	c, rec := newCtx(http.MethodGet, "/v1/bookings/b1", "")
	params(c, "id", "b1")
	_ = h.Get(c)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}

	c, rec = newCtx(http.MethodGet, "/v1/bookings/b1", "")
	params(c, "id", "b1")
	as(c, "u2", model.RoleCustomer)
	_ = h.Get(c)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger status = %d", rec.Code)
	}

	c, rec = newCtx(http.MethodGet, "/v1/bookings/nope", "")
	params(c, "id", "nope")
	as(c, "u1", model.RoleCustomer)
	_ = h.Get(c)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}

	c, rec = newCtx(http.MethodGet, "/v1/bookings/b1", "")
	params(c, "id", "b1")
	as(c, "u1", model.RoleCustomer)
	_ = h.Get(c)
	if rec.Code != http.StatusOK || decode(t, rec)["id"] != "b1" {
		t.Fatalf("owner status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestUpdateBookingStatus(t *testing.T) {
	led := &fakeLedger{bookings: map[string]model.Booking{"b1": customerBooking("b1", "u1", model.StatusPending, model.PaymentPending)}}
	h := NewBookingHandler(led, &fakeTours{}, nil, "", nil)

	c, rec := newCtx(http.MethodPut, "/v1/bookings/b1", `{"status":"cancelled","cancellation_reason":" plans changed "}`)
	params(c, "id", "b1")
	as(c, "u1", model.RoleCustomer)
	if err := h.Update(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	ch := led.change
	if led.changedID != "b1" || ch.Status != model.StatusCancelled || ch.Reason != "plans changed" ||
		ch.Actor != (booking.Actor{Kind: booking.ActorCustomer, ID: "u1"}) || ch.MarkPaid {
		t.Fatalf("change = %+v", ch)
	}

	c, rec = newCtx(http.MethodPut, "/v1/bookings/b1", `{"status":"refunded"}`)
	params(c, "id", "b1")
	as(c, "u1", model.RoleCustomer)
	_ = h.Update(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status -> %d", rec.Code)
	}

	led.err = booking.ErrCancellationWindow
	c, rec = newCtx(http.MethodPut, "/v1/bookings/b1", `{"status":"cancelled"}`)
	params(c, "id", "b1")
	as(c, "u1", model.RoleCustomer)
	_ = h.Update(c)
	if rec.Code != http.StatusConflict {
		t.Fatalf("late cancel -> %d", rec.Code)
	}
}

func TestMyBookings(t *testing.T) {
	led := &fakeLedger{}
	c, rec := newCtx(http.MethodGet, "/v1/my-bookings", "")
	as(c, "u9", model.RoleCustomer)
	if err := NewBookingHandler(led, &fakeTours{}, nil, "", nil).Mine(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || led.listedFor != "u9" {
		t.Fatalf("status=%d listed=%q", rec.Code, led.listedFor)
	}
}

func TestCheckout(t *testing.T) {
	bookings := map[string]model.Booking{
		"b1": customerBooking("b1", "u1", model.StatusPending, model.PaymentPending),
		"b2": customerBooking("b2", "u1", model.StatusConfirmed, model.PaymentPaid),
	}
	tours := &fakeTours{tours: map[string]model.Tour{"t1": {ID: "t1", Title: "Old Town Walk", IsActive: true}}}

	run := func(h *BookingHandler, id, uid, role string) (int, map[string]any) {
		c, rec := newCtx(http.MethodPost, "/v1/bookings/"+id+"/checkout", "")
		params(c, "id", id)
		as(c, uid, role)
		if err := h.Checkout(c); err != nil {
			t.Fatal(err)
		}
		return rec.Code, decode(t, rec)
	}

	if code, _ := run(NewBookingHandler(&fakeLedger{bookings: bookings}, tours, nil, "", nil), "b1", "u1", model.RoleCustomer); code != http.StatusServiceUnavailable {
		t.Fatalf("no provider -> %d", code)
	}

	co := &fakeCheckout{}
	h := NewBookingHandler(&fakeLedger{bookings: bookings}, tours, co, "", nil)
	if code, _ := run(h, "b1", "m1", model.RoleMerchant); code != http.StatusForbidden {
		t.Fatalf("merchant -> %d", code)
	}
	if code, _ := run(h, "b2", "u1", model.RoleCustomer); code != http.StatusConflict {
		t.Fatalf("paid booking -> %d", code)
	}
	code, body := run(h, "b1", "u1", model.RoleCustomer)
	if code != http.StatusCreated || body["url"] != "https://checkout.example/cs_1" {
		t.Fatalf("checkout -> %d %v", code, body)
	}
	if co.calls != 1 || co.title != "Old Town Walk" {
		t.Fatalf("calls=%d title=%q", co.calls, co.title)
	}

	co.err = errors.New("stripe down")
	if code, _ := run(h, "b1", "u1", model.RoleCustomer); code != http.StatusBadGateway {
		t.Fatalf("provider failure -> %d", code)
	}
}

func TestCreateBookingIssuesGuestToken(t *testing.T) {
	led := &fakeLedger{}
	h := NewBookingHandler(led, &fakeTours{}, nil, "guest-secret", nil)

	c, rec := newCtx(http.MethodPost, "/v1/bookings", createBody)
	if err := h.Create(c); err != nil {
		t.Fatal(err)
	}
	body := decode(t, rec)
	raw, _ := body["access_token"].(string)
	if rec.Code != http.StatusCreated || raw == "" || body["id"] != "b-new" {
		t.Fatalf("guest create -> %d %v", rec.Code, body)
	}
	cl, err := utils.ParseAccessToken("guest-secret", raw)
	if err != nil {
		t.Fatal(err)
	}
	if cl.UserID != "b-new" || cl.Role != model.RoleGuest || cl.Email != "ana@example.com" {
		t.Fatalf("claims = %+v", cl)
	}

	c, rec = newCtx(http.MethodPost, "/v1/bookings", createBody)
	as(c, "u1", model.RoleCustomer)
	_ = h.Create(c)
	if _, ok := decode(t, rec)["access_token"]; ok {
		t.Fatal("account holder received a guest token")
	}

	// a guest token never turns into a user id
	c, _ = newCtx(http.MethodPost, "/v1/bookings", createBody)
	as(c, "b-old", model.RoleGuest)
	_ = h.Create(c)
	if led.created.UserID != "" {
		t.Fatalf("user id = %q", led.created.UserID)
	}
}

func TestGuestTokenPaysAndCancels(t *testing.T) {
	bookings := map[string]model.Booking{
		"g1": {ID: "g1", TourID: "t1", MerchantID: "m1", Status: model.StatusPending, PaymentStatus: model.PaymentPending},
		"b1": customerBooking("b1", "u1", model.StatusPending, model.PaymentPending),
	}
	co := &fakeCheckout{}
	led := &fakeLedger{bookings: bookings}
	h := NewBookingHandler(led, &fakeTours{}, co, "guest-secret", nil)

	checkout := func(id string) int {
		c, rec := newCtx(http.MethodPost, "/v1/bookings/"+id+"/checkout", "")
		params(c, "id", id)
		as(c, "g1", model.RoleGuest)
		if err := h.Checkout(c); err != nil {
			t.Fatal(err)
		}
		return rec.Code
	}
	if code := checkout("g1"); code != http.StatusCreated || co.calls != 1 {
		t.Fatalf("guest checkout -> %d calls=%d", code, co.calls)
	}
	if code := checkout("b1"); code != http.StatusForbidden {
		t.Fatalf("guest checkout of another booking -> %d", code)
	}

	c, rec := newCtx(http.MethodPut, "/v1/bookings/g1", `{"status":"cancelled"}`)
	params(c, "id", "g1")
	as(c, "g1", model.RoleGuest)
	_ = h.Update(c)
	if rec.Code != http.StatusOK || led.change.Actor != (booking.Actor{Kind: booking.ActorGuest, ID: "g1"}) {
		t.Fatalf("guest cancel -> %d actor=%+v", rec.Code, led.change.Actor)
	}
}

func TestWriteErrorLogsUnexpected(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	c, rec := newCtx(http.MethodGet, "/v1/tours", "")
	_ = writeError(c, log, errors.New("connection reset"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatalf("-> %d %s", rec.Code, rec.Body)
	}
	if out := buf.String(); !strings.Contains(out, "request failed") || !strings.Contains(out, "connection reset") {
		t.Fatalf("log = %q", out)
	}

	buf.Reset()
	c, _ = newCtx(http.MethodGet, "/v1/tours", "")
	_ = writeError(c, log, booking.ErrForbidden)
	if buf.Len() != 0 {
		t.Fatalf("client error was logged: %q", buf.String())
	}
}
