// Package handler holds the Echo HTTP handlers.  Handlers depend on small
// interfaces over the booking engine and repositories so they can be
// tested against fakes.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// actorFrom returns the booking actor of an authenticated request.
func actorFrom(c echo.Context) (booking.Actor, bool) {
	id, ok := middleware.CurrentUser(c)
	if !ok {
		return booking.Actor{}, false
	}
	return booking.ActorFromRole(id.Role, id.UserID), true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// orDefault returns log, or the process logger when log is nil.
func orDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

// writeError maps engine and repository errors onto HTTP responses.
// Unknown errors become 500 without leaking their text; they are logged
// with the request id.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	var capErr *booking.CapacityError
	switch {
	case errors.As(err, &capErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":           "not enough availability",
			"available_spots": capErr.AvailableSpots,
		})
	case errors.Is(err, booking.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrForbidden), errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrCancellationWindow),
		errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	orDefault(log).ErrorContext(c.Request().Context(), "request failed",
		slog.String("method", c.Request().Method), slog.String("path", c.Path()),
		slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		slog.Any("err", err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// parseDate reads a YYYY-MM-DD value.
func parseDate(raw string) (model.Date, bool) {
	d, err := model.ParseDate(strings.TrimSpace(raw))
	return d, err == nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
