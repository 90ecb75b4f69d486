package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/payment"
	"github.com/iliyamo/tour-booking/internal/utils"
)

// BookingService is the booking engine as used over HTTP.
type BookingService interface {
	Create(ctx context.Context, in booking.CreateInput) (model.Booking, error)
	Get(ctx context.Context, id string, actor booking.Actor) (model.Booking, error)
	UpdateStatus(ctx context.Context, id string, ch booking.StatusChange) (model.Booking, error)
	ListForUser(ctx context.Context, userID string) ([]model.Booking, error)
	ListForMerchant(ctx context.Context, merchantID string) ([]model.Booking, error)
	SeedInventory(ctx context.Context, actor booking.Actor, in booking.InventoryInput) (model.InventoryRecord, error)
	ReconcileInventory(ctx context.Context, tourID string, date model.Date) (int, error)
}

// CheckoutCreator opens a hosted payment page for a booking.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, b model.Booking, tourTitle string) (payment.Checkout, error)
}

// BookingHandler serves the booking endpoints.  Payments may be nil when
// no payment provider is configured.  GuestSecret signs the booking-scoped
// token returned to guests; without it guests get no token.
type BookingHandler struct {
	Ledger      BookingService
	Tours       TourCatalog
	Payments    CheckoutCreator
	GuestSecret string
	Log         *slog.Logger
}

func NewBookingHandler(ledger BookingService, tours TourCatalog, payments CheckoutCreator, guestSecret string, log *slog.Logger) *BookingHandler {
	return &BookingHandler{Ledger: ledger, Tours: tours, Payments: payments, GuestSecret: guestSecret, Log: orDefault(log)}
}

// createdBooking is the create response.  Guests also receive an access
// token limited to this booking, which they use to pay, read and cancel it.
type createdBooking struct {
	model.Booking
	AccessToken          string     `json:"access_token,omitempty"`
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at,omitempty"`
}

// guestToken signs a GUEST token for b that stays valid until the day after
// the tour.
func (h *BookingHandler) guestToken(b model.Booking) (utils.AccessToken, error) {
	ttl := time.Until(b.TourDate.Start().Add(24 * time.Hour))
	minutes := int(ttl / time.Minute)
	if minutes < 60 {
		minutes = 60
	}
	return utils.NewAccessToken(h.GuestSecret, b.ID, model.RoleGuest, b.ContactEmail, minutes)
}

type createBookingReq struct {
	TourID          string `json:"tour_id" validate:"required"`
	TourDate        string `json:"tour_date" validate:"required"`
	NumberOfGuests  int    `json:"number_of_guests"`
	DiscountCents   int64  `json:"discount_cents"`
	FinalPriceCents *int64 `json:"final_price_cents"`
	ContactName     string `json:"contact_name" validate:"max=200"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone    string `json:"contact_phone" validate:"max=50"`
	SpecialRequests string `json:"special_requests" validate:"max=2000"`
	PaymentRef      string `json:"payment_ref"`
}

// Create handles POST /v1/bookings.  Anonymous callers book as guests and
// must supply a contact email; authenticated callers default the contact
// email to the one in their token.  A guest token books as a new guest.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	date, ok := parseDate(req.TourDate)
	if !ok {
		return badRequest(c, "tour_date must be YYYY-MM-DD")
	}
	in := booking.CreateInput{
		TourID:          strings.TrimSpace(req.TourID),
		TourDate:        date,
		NumberOfGuests:  req.NumberOfGuests,
		DiscountCents:   req.DiscountCents,
		FinalPriceCents: req.FinalPriceCents,
		ContactName:     strings.TrimSpace(req.ContactName),
		ContactEmail:    strings.TrimSpace(req.ContactEmail),
		ContactPhone:    strings.TrimSpace(req.ContactPhone),
		SpecialRequests: req.SpecialRequests,
		PaymentRef:      strings.TrimSpace(req.PaymentRef),
	}
	if id, ok := middleware.CurrentUser(c); ok && id.Role != model.RoleGuest {
		in.UserID = id.UserID
		if in.ContactEmail == "" {
			in.ContactEmail = id.Email
		}
	}
	ctx := c.Request().Context()
	b, err := h.Ledger.Create(ctx, in)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	resp := createdBooking{Booking: b}
	if in.UserID == "" && h.GuestSecret != "" {
		tok, err := h.guestToken(b)
		if err != nil {
			// the booking stands; the guest can still pay with a payment_ref
			orDefault(h.Log).ErrorContext(ctx, "sign guest token", slog.String("booking_id", b.ID), slog.Any("err", err))
		} else {
			resp.AccessToken, resp.AccessTokenExpiresAt = tok.Token, &tok.Exp
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	b, err := h.Ledger.Get(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

type updateBookingReq struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
	Reason string `json:"cancellation_reason" validate:"max=500"`
}

// Update handles PUT /v1/bookings/:id, a status transition.
func (h *BookingHandler) Update(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req updateBookingReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	b, err := h.Ledger.UpdateStatus(c.Request().Context(), c.Param("id"), booking.StatusChange{
		Status: model.BookingStatus(req.Status),
		Actor:  actor,
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Mine handles GET /v1/my-bookings.
func (h *BookingHandler) Mine(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Ledger.ListForUser(c.Request().Context(), actor.ID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Checkout handles POST /v1/bookings/:id/checkout.  Only the booking's
// owner, its guest token or an admin can pay, and only while the booking
// awaits payment.
func (h *BookingHandler) Checkout(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if h.Payments == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payments are not configured"})
	}
	ctx := c.Request().Context()
	b, err := h.Ledger.Get(ctx, c.Param("id"), actor)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if actor.Kind != booking.ActorAdmin && !actor.Owns(b) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if b.Status != model.StatusPending || b.PaymentStatus != model.PaymentPending {
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking is not awaiting payment"})
	}
	var title string
	if t, err := h.Tours.GetByID(ctx, b.TourID); err == nil {
		title = t.Title
	}
	co, err := h.Payments.CreateCheckout(ctx, b, title)
	if err != nil {
		orDefault(h.Log).ErrorContext(ctx, "create checkout", slog.String("booking_id", b.ID), slog.Any("err", err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}
	return c.JSON(http.StatusCreated, co)
}
