package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/booking"
	"github.com/iliyamo/tour-booking/internal/payment"
)

// maxWebhookBytes caps the body read from the payment provider.
const maxWebhookBytes = 64 << 10

// PaymentEventHandler applies a verified payment event to the ledger.
type PaymentEventHandler interface {
	Handle(ctx context.Context, ev booking.PaymentEvent) error
}

// WebhookHandler is the entry point for payment provider callbacks.
type WebhookHandler struct {
	Secret   string
	Listener PaymentEventHandler
	Log      *slog.Logger
}

func NewWebhookHandler(secret string, l PaymentEventHandler, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{Secret: secret, Listener: l, Log: orDefault(log)}
}

// Receive handles POST /v1/payment-webhook.  A bad signature is a 400; an
// event type the ledger does not care about is acknowledged with 200;
// store failures answer 500 so the provider redelivers.
func (h *WebhookHandler) Receive(c echo.Context) error {
	if h.Secret == "" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "webhook not configured"})
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return badRequest(c, "read body failed")
	}
	ev, ok, err := payment.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		if errors.Is(err, payment.ErrSignature) {
			return badRequest(c, "invalid signature")
		}
		return badRequest(c, err.Error())
	}
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "ignored": true})
	}
	if err := h.Listener.Handle(c.Request().Context(), ev); err != nil {
		orDefault(h.Log).ErrorContext(c.Request().Context(), "payment event failed",
			slog.String("event_id", ev.ID), slog.String("kind", string(ev.Kind)), slog.Any("err", err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
