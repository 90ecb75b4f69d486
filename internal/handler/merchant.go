package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/booking"
)

// MerchantHandler serves the merchant back office.
type MerchantHandler struct {
	Ledger BookingService
	Log    *slog.Logger
}

func NewMerchantHandler(ledger BookingService, log *slog.Logger) *MerchantHandler {
	return &MerchantHandler{Ledger: ledger, Log: orDefault(log)}
}

// Bookings handles GET /v1/merchant/bookings.
func (h *MerchantHandler) Bookings(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Ledger.ListForMerchant(c.Request().Context(), actor.ID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

type inventoryReq struct {
	MaxCapacity    *int  `json:"max_capacity" validate:"omitempty,gte=0"`
	AvailableSpots *int  `json:"available_spots" validate:"omitempty,gte=0"`
	IsAvailable    *bool `json:"is_available"`
}

// PutInventory handles PUT /v1/merchant/tours/:id/inventory/:date.
// Omitting is_available keeps the date open.
func (h *MerchantHandler) PutInventory(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	date, ok := parseDate(c.Param("date"))
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	var req inventoryReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	rec, err := h.Ledger.SeedInventory(c.Request().Context(), actor, booking.InventoryInput{
		TourID:         c.Param("id"),
		TourDate:       date,
		MaxCapacity:    req.MaxCapacity,
		AvailableSpots: req.AvailableSpots,
		IsAvailable:    req.IsAvailable == nil || *req.IsAvailable,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// Reconcile handles POST /v1/admin/tours/:id/inventory/:date/reconcile.
// It recomputes the counter from the committed bookings; dates without a
// counter-managed row report managed=false.
func (h *MerchantHandler) Reconcile(c echo.Context) error {
	date, ok := parseDate(c.Param("date"))
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	spots, err := h.Ledger.ReconcileInventory(c.Request().Context(), c.Param("id"), date)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if spots < 0 {
		return c.JSON(http.StatusOK, echo.Map{"managed": false})
	}
	return c.JSON(http.StatusOK, echo.Map{"managed": true, "available_spots": spots})
}
