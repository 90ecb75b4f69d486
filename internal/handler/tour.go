package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/model"
)

// TourCatalog reads and writes tours.
type TourCatalog interface {
	GetByID(ctx context.Context, id string) (model.Tour, error)
	ListActive(ctx context.Context, limit, offset int) ([]model.Tour, error)
	Create(ctx context.Context, t *model.Tour) error
}

// AvailabilityChecker answers capacity questions for a tour date.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, tourID string, date model.Date, guests int) (model.Availability, error)
}

// TourHandler serves the public catalogue.
type TourHandler struct {
	Tours TourCatalog
	Avail AvailabilityChecker
	Log   *slog.Logger
}

func NewTourHandler(tours TourCatalog, avail AvailabilityChecker, log *slog.Logger) *TourHandler {
	return &TourHandler{Tours: tours, Avail: avail, Log: orDefault(log)}
}

// List handles GET /v1/tours?limit=&offset=.  limit is clamped to 1..100.
func (h *TourHandler) List(c echo.Context) error {
	limit, ok1 := queryInt(c, "limit", 20)
	offset, ok2 := queryInt(c, "offset", 0)
	if !ok1 || !ok2 {
		return badRequest(c, "limit and offset must be integers")
	}
	if offset < 0 {
		return badRequest(c, "offset must not be negative")
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	tours, err := h.Tours.ListActive(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": tours, "limit": limit, "offset": offset})
}

// Get handles GET /v1/tours/:id.  Inactive tours are hidden.
func (h *TourHandler) Get(c echo.Context) error {
	t, err := h.Tours.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !t.IsActive {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tour not found"})
	}
	return c.JSON(http.StatusOK, t)
}

// Availability handles GET /v1/tours/:id/availability?date=&guests=.
func (h *TourHandler) Availability(c echo.Context) error {
	date, ok := parseDate(c.QueryParam("date"))
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	guests, ok := queryInt(c, "guests", 1)
	if !ok {
		return badRequest(c, "guests must be an integer")
	}
	a, err := h.Avail.CheckAvailability(c.Request().Context(), c.Param("id"), date, guests)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

type createTourReq struct {
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description"`
	Location       string `json:"location" validate:"max=200"`
	BasePriceCents int64  `json:"base_price_cents" validate:"gte=0"`
	PriceType      string `json:"price_type" validate:"required,oneof=per_person per_group"`
	IsActive       *bool  `json:"is_active"`
}

// Create handles POST /v1/merchant/tours.  The caller becomes the merchant
// of the new tour.
func (h *TourHandler) Create(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req createTourReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	t := model.Tour{
		MerchantID:     actor.ID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Location:       strings.TrimSpace(req.Location),
		BasePriceCents: req.BasePriceCents,
		PriceType:      model.PriceType(req.PriceType),
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
	if err := h.Tours.Create(c.Request().Context(), &t); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, t)
}
