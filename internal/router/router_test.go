package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/utils"
)

const secret = "router-secret"

type stubLedger struct{ created int }

func (s *stubLedger) Create(_ context.Context, in booking.CreateInput) (model.Booking, error) {
	s.created++
	return model.Booking{ID: "b1", TourID: in.TourID}, nil
}
func (s *stubLedger) Get(context.Context, string, booking.Actor) (model.Booking, error) {
	return model.Booking{}, booking.ErrNotFound
}
func (s *stubLedger) UpdateStatus(context.Context, string, booking.StatusChange) (model.Booking, error) {
	return model.Booking{}, booking.ErrNotFound
}
func (s *stubLedger) ListForUser(context.Context, string) ([]model.Booking, error) {
	return []model.Booking{}, nil
}
func (s *stubLedger) ListForMerchant(context.Context, string) ([]model.Booking, error) {
	return []model.Booking{}, nil
}
func (s *stubLedger) SeedInventory(context.Context, booking.Actor, booking.InventoryInput) (model.InventoryRecord, error) {
	return model.InventoryRecord{}, nil
}
func (s *stubLedger) ReconcileInventory(context.Context, string, model.Date) (int, error) {
	return 0, nil
}

func token(t *testing.T, uid, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, uid+"@example.com", 5)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func newServer(led *stubLedger) *echo.Echo {
	e := echo.New()
	e.Validator = handler.NewValidator()
	passthrough := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	RegisterRoutes(e, nil)
	RegisterBookings(e, handler.NewBookingHandler(led, nil, nil, secret, nil), secret, passthrough)
	RegisterMerchant(e, handler.NewMerchantHandler(led, nil), handler.NewTourHandler(nil, nil, nil), secret)
	return e
}

func do(e *echo.Echo, method, path, auth, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRouteProtection(t *testing.T) {
	led := &stubLedger{}
	e := newServer(led)
	customer := token(t, "u1", model.RoleCustomer)
	merchant := token(t, "m1", model.RoleMerchant)
	admin := token(t, "a1", model.RoleAdmin)
	guestTok := token(t, "b1", model.RoleGuest)
	guest := `{"tour_id":"t1","tour_date":"2026-11-01","number_of_guests":1,"final_price_cents":100,"contact_email":"g@example.com"}`

	tests := []struct {
		name, method, path, auth, body string
		want                           int
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"guest booking", http.MethodPost, "/v1/bookings", "", guest, http.StatusCreated},
		{"bad token on guest route", http.MethodPost, "/v1/bookings", "Bearer junk", guest, http.StatusUnauthorized},
		{"my bookings needs token", http.MethodGet, "/v1/my-bookings", "", "", http.StatusUnauthorized},
		{"my bookings", http.MethodGet, "/v1/my-bookings", customer, "", http.StatusOK},
		{"guest token has no account", http.MethodGet, "/v1/my-bookings", guestTok, "", http.StatusForbidden},
		{"guest token reaches its booking", http.MethodGet, "/v1/bookings/b1", guestTok, "", http.StatusNotFound},
		{"guest token in back office", http.MethodGet, "/v1/merchant/bookings", guestTok, "", http.StatusForbidden},
		{"customer in back office", http.MethodGet, "/v1/merchant/bookings", customer, "", http.StatusForbidden},
		{"merchant back office", http.MethodGet, "/v1/merchant/bookings", merchant, "", http.StatusOK},
		{"merchant cannot reconcile", http.MethodPost, "/v1/admin/tours/t1/inventory/2026-11-01/reconcile", merchant, "", http.StatusForbidden},
		{"admin reconcile", http.MethodPost, "/v1/admin/tours/t1/inventory/2026-11-01/reconcile", admin, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := do(e, tt.method, tt.path, tt.auth, tt.body); got != tt.want {
				t.Fatalf("%s %s -> %d, want %d", tt.method, tt.path, got, tt.want)
			}
		})
	}
	if led.created != 1 {
		t.Fatalf("created = %d", led.created)
	}
}
