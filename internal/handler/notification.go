package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/model"
)

// Inbox is the per-user notification store.
type Inbox interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type NotificationHandler struct {
	Inbox Inbox
	Log   *slog.Logger
}

func NewNotificationHandler(inbox Inbox, log *slog.Logger) *NotificationHandler {
	return &NotificationHandler{Inbox: inbox, Log: orDefault(log)}
}

// List handles GET /v1/notifications?limit=.
func (h *NotificationHandler) List(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return badRequest(c, "limit must be an integer")
	}
	items, err := h.Inbox.ListByUser(c.Request().Context(), actor.ID, limit)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// MarkRead handles PUT /v1/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.Inbox.MarkRead(c.Request().Context(), actor.ID, c.Param("id")); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
