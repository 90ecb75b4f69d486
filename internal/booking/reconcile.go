package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/tour-booking/internal/model"
)

// PaymentEventKind is the provider-neutral outcome carried by a payment
// event.
type PaymentEventKind string

const (
	PaymentSucceeded      PaymentEventKind = "payment_succeeded"
	AsyncPaymentSucceeded PaymentEventKind = "async_payment_succeeded"
	AsyncPaymentFailed    PaymentEventKind = "async_payment_failed"
	PaymentFailed         PaymentEventKind = "payment_failed"
)

// PaymentEvent is a verified notification from the payment provider.
type PaymentEvent struct {
	ID          string
	Kind        PaymentEventKind
	BookingID   string
	PaymentRef  string
	AmountCents int64
	Reason      string
}

type statusUpdater interface {
	UpdateStatus(ctx context.Context, id string, ch StatusChange) (model.Booking, error)
}

// Listener turns payment events into ledger transitions.
type Listener struct {
	ledger statusUpdater
	log    *slog.Logger
}

// NewListener returns a Listener driving ledger.
func NewListener(ledger *Ledger, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{ledger: ledger, log: log}
}

// Handle reconciles one event.  Events that can never succeed (unknown
// booking, impossible transition) are logged and acknowledged; any other
// error is returned so the provider redelivers.
func (l *Listener) Handle(ctx context.Context, ev PaymentEvent) error {
	log := l.log.With(slog.String("event_id", ev.ID), slog.String("kind", string(ev.Kind)),
		slog.String("booking_id", ev.BookingID))
	if ev.BookingID == "" {
		log.WarnContext(ctx, "payment event without booking reference dropped")
		return nil
	}

	var ch StatusChange
	switch ev.Kind {
	case PaymentSucceeded, AsyncPaymentSucceeded:
		ch = StatusChange{Status: model.StatusConfirmed, MarkPaid: true, PaymentRef: ev.PaymentRef}
	case AsyncPaymentFailed:
		reason := "payment failed"
		if ev.Reason != "" {
			reason = fmt.Sprintf("payment failed: %s", ev.Reason)
		}
		ch = StatusChange{Status: model.StatusCancelled, Reason: reason, PaymentRef: ev.PaymentRef, OnlyUnpaid: true}
	case PaymentFailed:
		// The customer may retry the same checkout; the booking stays pending.
		log.WarnContext(ctx, "payment attempt failed", slog.String("reason", ev.Reason))
		return nil
	default:
		log.DebugContext(ctx, "payment event ignored")
		return nil
	}
	ch.Actor = Actor{Kind: ActorSystem}
	ch.EventID = ev.ID
	ch.EventKind = string(ev.Kind)

	b, err := l.ledger.UpdateStatus(ctx, ev.BookingID, ch)
	switch {
	case err == nil:
		log.InfoContext(ctx, "payment event reconciled",
			slog.String("status", string(b.Status)), slog.String("payment_status", string(b.PaymentStatus)))
		return nil
	case errors.Is(err, ErrStalePayment):
		log.WarnContext(ctx, "reconciliation anomaly: stale payment event dropped",
			slog.String("payment_ref", ev.PaymentRef), slog.Any("err", err))
		return nil
	case errors.Is(err, ErrNotFound):
		log.WarnContext(ctx, "payment event for unknown booking dropped")
		return nil
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrValidation):
		log.WarnContext(ctx, "payment event does not apply to booking", slog.Any("err", err))
		return nil
	default:
		return fmt.Errorf("reconcile payment event %s: %w", ev.ID, err)
	}
}
